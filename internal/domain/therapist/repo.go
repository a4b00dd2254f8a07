package therapist

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Record is a stored therapist document and its ID.
type Record struct {
	ID  string
	Raw RawTherapist
}

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) col() *firestore.CollectionRef {
	return r.fs.Collection(Collection)
}

func (r *Repo) List(ctx context.Context) ([]Record, error) {
	iter := r.col().Documents(ctx)
	defer iter.Stop()

	return collect(iter)
}

func (r *Repo) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := r.col().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: therapist %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get therapist: %w", err)
	}
	rec, err := decode(doc)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) Create(ctx context.Context, fields map[string]interface{}) (string, error) {
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, fields); err != nil {
		return "", fmt.Errorf("failed to create therapist: %w", err)
	}
	return ref.ID, nil
}

// Update merges fields into an existing therapist document.
func (r *Repo) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := r.col().Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: therapist %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update therapist: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := r.col().Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: therapist %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete therapist: %w", err)
	}
	return nil
}

// Watch streams the full therapist collection to onChange every time it
// changes. It blocks until ctx is done or the listener fails.
func (r *Repo) Watch(ctx context.Context, onChange func([]Record)) error {
	it := r.col().Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("therapist listener: %w", err)
		}
		if snap == nil {
			continue
		}
		recs, err := collect(snap.Documents)
		if err != nil {
			return err
		}
		onChange(recs)
	}
}

// ResetTodayBookings zeroes todayBookings on every therapist with a non-zero
// count and returns how many documents were touched.
func (r *Repo) ResetTodayBookings(ctx context.Context) (int, error) {
	iter := r.col().Where("todayBookings", ">", 0).Documents(ctx)
	defer iter.Stop()

	now := time.Now().UTC()
	batch := r.fs.Batch()
	count, pending := 0, 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate therapists: %w", err)
		}
		batch.Update(doc.Ref, []firestore.Update{
			{Path: "todayBookings", Value: 0},
			{Path: "updatedAt", Value: now},
		})
		pending++

		// Firestore batches cap at 500 writes.
		if pending == 450 {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to reset counters: %w", err)
			}
			count += pending
			pending = 0
			batch = r.fs.Batch()
		}
	}
	if pending > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to reset counters: %w", err)
		}
		count += pending
	}
	return count, nil
}

func collect(iter *firestore.DocumentIterator) ([]Record, error) {
	out := []Record{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate therapists: %w", err)
		}
		rec, err := decode(doc)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decode(doc *firestore.DocumentSnapshot) (Record, error) {
	var raw RawTherapist
	if err := doc.DataTo(&raw); err != nil {
		return Record{}, fmt.Errorf("failed to parse therapist %s: %w", doc.Ref.ID, err)
	}
	return Record{ID: doc.Ref.ID, Raw: raw}, nil
}
