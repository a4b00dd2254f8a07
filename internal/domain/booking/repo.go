package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"soulease/backend/internal/domain/therapist"
)

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) col() *firestore.CollectionRef {
	return r.fs.Collection(Collection)
}

func (r *Repo) therapistRef(id string) *firestore.DocumentRef {
	return r.fs.Collection(therapist.Collection).Doc(id)
}

// Create stores b after checking, inside one transaction, that the
// therapist has no conflicting booking. totalBookings is incremented in the
// same transaction, and todayBookings too when countToday is set.
func (r *Repo) Create(ctx context.Context, b Booking, countToday bool) (string, error) {
	ref := r.col().NewDoc()
	err := r.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		q := r.col().
			Where("therapistId", "==", b.TherapistID).
			Where("scheduledAt", ">", b.ScheduledAt.Add(-ConflictWindow)).
			Where("scheduledAt", "<", b.ScheduledAt.Add(ConflictWindow))
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return fmt.Errorf("failed to check conflicts: %w", err)
		}
		for _, doc := range docs {
			existing, err := decode(doc)
			if err != nil {
				continue
			}
			if Conflicts(existing, b.ScheduledAt) {
				return fmt.Errorf("%w: therapist already booked at %s", ErrConflict,
					existing.ScheduledAt.Format("15:04"))
			}
		}

		if err := tx.Create(ref, b); err != nil {
			return err
		}
		updates := []firestore.Update{
			{Path: "totalBookings", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: b.CreatedAt},
		}
		if countToday {
			updates = append(updates, firestore.Update{Path: "todayBookings", Value: firestore.Increment(1)})
		}
		return tx.Update(r.therapistRef(b.TherapistID), updates)
	})
	if err != nil {
		if isDomainErr(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to create booking: %w", err)
	}
	return ref.ID, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Booking, error) {
	doc, err := r.col().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	b, err := decode(doc)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListByUser returns the user's bookings, newest appointment first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	out, err := r.query(ctx, r.col().Where("userId", "==", userID))
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// ListByTherapist returns the therapist's bookings, newest appointment first.
func (r *Repo) ListByTherapist(ctx context.Context, therapistID string) ([]Booking, error) {
	out, err := r.query(ctx, r.col().Where("therapistId", "==", therapistID))
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// ListRange returns bookings scheduled in [from, to), oldest first.
func (r *Repo) ListRange(ctx context.Context, from, to time.Time) ([]Booking, error) {
	return r.query(ctx, r.col().
		Where("scheduledAt", ">=", from).
		Where("scheduledAt", "<", to).
		OrderBy("scheduledAt", firestore.Asc))
}

// UpdateStatus moves booking id to the given status once check accepts
// the current document. Cancelling a booking that counts toward today (see
// CountsToday) gives the slot back on the therapist's todayBookings,
// never going below zero.
func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status, now time.Time, check func(Booking) error) (*Booking, error) {
	ref := r.col().Doc(id)
	var out Booking
	err := r.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		b, err := r.getTx(tx, ref)
		if err != nil {
			return err
		}
		if err := check(b); err != nil {
			return err
		}

		// All reads precede writes in a Firestore transaction.
		var release []firestore.Update
		if to == StatusCancelled && b.Status != StatusCancelled && CountsToday(b.ScheduledAt, now) {
			release, err = r.releaseToday(tx, b.TherapistID, now)
			if err != nil {
				return err
			}
		}

		at := now.UTC()
		b.Status, b.UpdatedAt = to, at
		b.UserStatus = to.UserStatus()
		out = b
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return err
		}
		if release == nil {
			return nil
		}
		return tx.Update(r.therapistRef(b.TherapistID), release)
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	return &out, nil
}

// releaseToday reads the therapist inside tx and returns the update that
// takes one booking off todayBookings. A missing therapist or an already
// zero counter yields no update.
func (r *Repo) releaseToday(tx *firestore.Transaction, therapistID string, now time.Time) ([]firestore.Update, error) {
	doc, err := tx.Get(r.therapistRef(therapistID))
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw therapist.RawTherapist
	if err := doc.DataTo(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse therapist %s: %w", therapistID, err)
	}
	if raw.TodayBookings == nil || *raw.TodayBookings <= 0 {
		return nil, nil
	}
	return []firestore.Update{
		{Path: "todayBookings", Value: DecrementToday(*raw.TodayBookings)},
		{Path: "updatedAt", Value: now.UTC()},
	}, nil
}

// DecrementToday is the todayBookings value after one cancellation.
func DecrementToday(n int64) int64 {
	if n <= 1 {
		return 0
	}
	return n - 1
}

// Review stores the rating on booking id and folds it into the therapist's
// running average.
func (r *Repo) Review(ctx context.Context, id string, in ReviewInput, check func(Booking) error) (*Booking, error) {
	ref := r.col().Doc(id)
	var out Booking
	err := r.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		b, err := r.getTx(tx, ref)
		if err != nil {
			return err
		}
		if err := check(b); err != nil {
			return err
		}

		tref := r.therapistRef(b.TherapistID)
		tdoc, err := tx.Get(tref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: therapist %s", ErrNotFound, b.TherapistID)
		}
		if err != nil {
			return err
		}
		var raw therapist.RawTherapist
		if err := tdoc.DataTo(&raw); err != nil {
			return fmt.Errorf("failed to parse therapist %s: %w", b.TherapistID, err)
		}
		rating, count := RunningAverage(raw.Rating, raw.ReviewCount, in.Rating)

		now := time.Now().UTC()
		b.Rating, b.Review, b.ReviewedAt, b.UpdatedAt = in.Rating, in.Text, &now, now
		out = b

		if err := tx.Update(ref, []firestore.Update{
			{Path: "rating", Value: in.Rating},
			{Path: "review", Value: in.Text},
			{Path: "reviewedAt", Value: now},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		return tx.Update(tref, []firestore.Update{
			{Path: "rating", Value: rating},
			{Path: "reviewCount", Value: count},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to review booking: %w", err)
	}
	return &out, nil
}

// RunningAverage folds one more rating into a stored average.
func RunningAverage(avg *float64, count *int64, rating int) (float64, int64) {
	var a float64
	var n int64
	if avg != nil {
		a = *avg
	}
	if count != nil && *count > 0 {
		n = *count
	}
	n++
	return (a*float64(n-1) + float64(rating)) / float64(n), n
}

func (r *Repo) getTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (Booking, error) {
	doc, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Booking{}, fmt.Errorf("%w: booking %s", ErrNotFound, ref.ID)
	}
	if err != nil {
		return Booking{}, err
	}
	return decode(doc)
}

func (r *Repo) query(ctx context.Context, q firestore.Query) ([]Booking, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []Booking{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate bookings: %w", err)
		}
		b, err := decode(doc)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func decode(doc *firestore.DocumentSnapshot) (Booking, error) {
	var b Booking
	if err := doc.DataTo(&b); err != nil {
		return Booking{}, fmt.Errorf("failed to parse booking %s: %w", doc.Ref.ID, err)
	}
	b.ID = doc.Ref.ID
	b.UserStatus = b.Status.UserStatus()
	return b, nil
}

func sortNewestFirst(bs []Booking) {
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].ScheduledAt.After(bs[j].ScheduledAt) })
}

func isDomainErr(err error) bool {
	for _, e := range []error{ErrBadRequest, ErrForbidden, ErrNotFound, ErrConflict, ErrUnavailable} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
