package http

import (
	"net/http"
	"strings"
	"time"

	"soulease/backend/internal/config"
	"soulease/backend/internal/domain/admin"
	"soulease/backend/internal/domain/booking"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/domain/therapist"
	"soulease/backend/internal/middleware"
	"soulease/backend/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Cfg    config.Config
	Logger *zap.Logger
	Auth   middleware.TokenVerifier

	// Limiter throttles booking creation; nil disables it.
	Limiter *middleware.RateLimiter

	TherapistSvc TherapistService
	BookingSvc   BookingService
	MatchingSvc  MatchingService
	ReportSvc    ReportService
	AdminSvc     AdminService

	// Optional adapters.
	Maps    Maps
	Uploads UploadSigner

	// Now overrides the clock in tests.
	Now func() time.Time
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

func (d RouterDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return d.Cfg.Now()
}

func (d RouterDeps) loc() *time.Location {
	if d.Cfg.Location != nil {
		return d.Cfg.Location
	}
	return time.UTC
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.CORS(d.Cfg.AllowedOrigins, d.Logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, 200, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})

	// Protected routes
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithAuth(d.Auth, d.Logger))

		pr.Get("/v1/me", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())
			WriteJSON(w, 200, map[string]any{
				"uid":         au.UID,
				"email":       au.Email,
				"admin":       au.Admin(),
				"therapistId": au.TherapistID(),
				"claims":      au.Claims,
			})
		})

		// ===== Therapists =====
		pr.Get("/v1/therapists", func(w http.ResponseWriter, r *http.Request) {
			q := strings.TrimSpace(r.URL.Query().Get("q"))
			out, err := d.TherapistSvc.List(r.Context(), q)
			if err != nil {
				status, msg := mapTherapistError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, map[string]any{"therapists": out})
		})

		pr.Get("/v1/therapists/stream", streamTherapists(d))

		pr.Get("/v1/therapists/nearest", func(w http.ResponseWriter, r *http.Request) {
			target, ok := queryPoint(r, "lat", "lng")
			if !ok {
				Fail(w, 400, "lat and lng are required")
				return
			}
			when := d.now()
			if at := strings.TrimSpace(r.URL.Query().Get("at")); at != "" {
				t, err := utils.ParseTime(at, d.loc())
				if err != nil {
					Fail(w, 400, "invalid at")
					return
				}
				when = t
			}
			limit := queryInt(r, "limit", 10)

			out, err := d.MatchingSvc.Nearest(r.Context(), target, when, limit)
			if err != nil {
				status, msg := mapQueryError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, map[string]any{"therapists": out})
		})

		pr.Get("/v1/therapists/{id}", func(w http.ResponseWriter, r *http.Request) {
			out, err := d.TherapistSvc.Get(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				status, msg := mapTherapistError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Get("/v1/therapists/{id}/next-slot", func(w http.ResponseWriter, r *http.Request) {
			duration := queryInt(r, "duration", 60)
			slot, err := d.TherapistSvc.NextSlot(r.Context(), chi.URLParam(r, "id"), duration)
			if err != nil {
				status, msg := mapTherapistError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, map[string]any{"nextSlot": slot})
		})

		// ===== Geo =====
		pr.Get("/v1/geo/distance", func(w http.ResponseWriter, r *http.Request) {
			from, ok1 := queryPoint(r, "fromLat", "fromLng")
			to, ok2 := queryPoint(r, "toLat", "toLng")
			if !ok1 || !ok2 {
				Fail(w, 400, "fromLat, fromLng, toLat and toLng are required")
				return
			}
			route := geo.StraightLine(from, to)
			if d.Maps != nil {
				rt, err := d.Maps.DrivingDistance(r.Context(), from, to)
				if err != nil {
					d.Logger.Warn("driving distance failed, using straight line", zap.Error(err))
				} else {
					route = rt
				}
			}
			WriteJSON(w, 200, route)
		})

		pr.Get("/v1/geo/geocode", func(w http.ResponseWriter, r *http.Request) {
			if d.Maps == nil {
				Fail(w, 503, "geocoding is not configured")
				return
			}
			address := strings.TrimSpace(r.URL.Query().Get("address"))
			if address == "" {
				Fail(w, 400, "address is required")
				return
			}
			out, err := d.Maps.Geocode(r.Context(), address)
			if err != nil {
				status, msg := mapQueryError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Get("/v1/geo/reverse", func(w http.ResponseWriter, r *http.Request) {
			if d.Maps == nil {
				Fail(w, 503, "geocoding is not configured")
				return
			}
			p, ok := queryPoint(r, "lat", "lng")
			if !ok {
				Fail(w, 400, "lat and lng are required")
				return
			}
			out, err := d.Maps.ReverseGeocode(r.Context(), p)
			if err != nil {
				status, msg := mapQueryError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		// ===== Bookings =====
		createBooking := func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())

			var in booking.CreateBookingInput
			if !readJSON(w, r, &in) {
				return
			}
			in.Trim()

			out, err := d.BookingSvc.Create(r.Context(), au.UID, in)
			if err != nil {
				status, msg := mapBookingError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 201, out)
		}
		if d.Limiter != nil {
			pr.With(d.Limiter.Handler).Post("/v1/bookings", createBooking)
		} else {
			pr.Post("/v1/bookings", createBooking)
		}

		pr.Get("/v1/bookings/mine", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())
			out, err := d.BookingSvc.ListForUser(r.Context(), au.UID)
			if err != nil {
				status, msg := mapBookingError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, map[string]any{"bookings": out})
		})

		pr.Get("/v1/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())
			out, err := d.BookingSvc.Get(r.Context(), actorOf(au), chi.URLParam(r, "id"))
			if err != nil {
				status, msg := mapBookingError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Post("/v1/bookings/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())
			out, err := d.BookingSvc.Cancel(r.Context(), actorOf(au), chi.URLParam(r, "id"))
			if err != nil {
				status, msg := mapBookingError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Post("/v1/bookings/{id}/review", func(w http.ResponseWriter, r *http.Request) {
			au, _ := middleware.GetAuthUser(r.Context())

			var in booking.ReviewInput
			if !readJSON(w, r, &in) {
				return
			}
			in.Text = strings.TrimSpace(in.Text)

			out, err := d.BookingSvc.Review(r.Context(), au.UID, chi.URLParam(r, "id"), in)
			if err != nil {
				status, msg := mapBookingError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		// ===== Therapist self-service =====
		pr.Group(func(tr chi.Router) {
			tr.Use(middleware.RequireTherapist)

			tr.Get("/v1/therapist/bookings", func(w http.ResponseWriter, r *http.Request) {
				au, _ := middleware.GetAuthUser(r.Context())
				out, err := d.BookingSvc.ListForTherapist(r.Context(), au.TherapistID())
				if err != nil {
					status, msg := mapBookingError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"bookings": out})
			})

			tr.Put("/v1/therapist/location", func(w http.ResponseWriter, r *http.Request) {
				au, _ := middleware.GetAuthUser(r.Context())

				var in geo.Point
				if !readJSON(w, r, &in) {
					return
				}
				out, err := d.TherapistSvc.UpdateLocation(r.Context(), au.TherapistID(), in)
				if err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			tr.Put("/v1/therapist/schedule", func(w http.ResponseWriter, r *http.Request) {
				au, _ := middleware.GetAuthUser(r.Context())

				var in struct {
					StartTime string `json:"startTime"`
					EndTime   string `json:"endTime"`
				}
				if !readJSON(w, r, &in) {
					return
				}
				out, err := d.TherapistSvc.UpdateSchedule(r.Context(), au.TherapistID(),
					strings.TrimSpace(in.StartTime), strings.TrimSpace(in.EndTime))
				if err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			tr.Put("/v1/therapist/fcm-token", func(w http.ResponseWriter, r *http.Request) {
				au, _ := middleware.GetAuthUser(r.Context())

				var in struct {
					Token string `json:"token"`
				}
				if !readJSON(w, r, &in) {
					return
				}
				if err := d.TherapistSvc.UpdateFCMToken(r.Context(), au.TherapistID(), strings.TrimSpace(in.Token)); err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"success": true})
			})

			tr.Post("/v1/therapist/bookings/{id}/status", updateBookingStatus(d))
		})

		// ===== Admin =====
		pr.Group(func(ar chi.Router) {
			ar.Use(middleware.RequireAdmin)

			ar.Post("/v1/admin/therapists", func(w http.ResponseWriter, r *http.Request) {
				var in therapist.CreateTherapistInput
				if !readJSON(w, r, &in) {
					return
				}
				in.Trim()

				out, err := d.TherapistSvc.Create(r.Context(), in)
				if err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 201, out)
			})

			ar.Put("/v1/admin/therapists/{id}", func(w http.ResponseWriter, r *http.Request) {
				var in therapist.UpdateTherapistInput
				if !readJSON(w, r, &in) {
					return
				}
				in.Trim()

				out, err := d.TherapistSvc.Update(r.Context(), chi.URLParam(r, "id"), in)
				if err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			ar.Delete("/v1/admin/therapists/{id}", func(w http.ResponseWriter, r *http.Request) {
				if err := d.TherapistSvc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"success": true})
			})

			ar.Post("/v1/admin/therapists/{id}/holiday", func(w http.ResponseWriter, r *http.Request) {
				var in struct {
					Holiday bool `json:"holiday"`
				}
				if !readJSON(w, r, &in) {
					return
				}
				out, err := d.TherapistSvc.SetHoliday(r.Context(), chi.URLParam(r, "id"), in.Holiday)
				if err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			ar.Post("/v1/admin/therapists/{id}/upload-url", func(w http.ResponseWriter, r *http.Request) {
				if d.Uploads == nil {
					Fail(w, 503, "uploads are not configured")
					return
				}
				var in struct {
					ContentType string `json:"contentType"`
				}
				if !readJSON(w, r, &in) {
					return
				}
				id := chi.URLParam(r, "id")
				if _, err := d.TherapistSvc.Get(r.Context(), id); err != nil {
					status, msg := mapTherapistError(err)
					Fail(w, status, msg)
					return
				}
				out, err := d.Uploads.SignedUploadURL(r.Context(), id, strings.TrimSpace(in.ContentType))
				if err != nil {
					status, msg := mapQueryError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			ar.Get("/v1/admin/bookings", func(w http.ResponseWriter, r *http.Request) {
				var from, to time.Time
				var err error
				if s := strings.TrimSpace(r.URL.Query().Get("from")); s != "" {
					if from, err = utils.ParseTime(s, d.loc()); err != nil {
						Fail(w, 400, "invalid from")
						return
					}
				}
				if s := strings.TrimSpace(r.URL.Query().Get("to")); s != "" {
					if to, err = utils.ParseTime(s, d.loc()); err != nil {
						Fail(w, 400, "invalid to")
						return
					}
				}
				out, err := d.BookingSvc.ListAll(r.Context(), from, to)
				if err != nil {
					status, msg := mapBookingError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"bookings": out})
			})

			ar.Post("/v1/admin/bookings/{id}/status", updateBookingStatus(d))

			ar.Get("/v1/admin/reports", func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				out, err := d.ReportSvc.Report(r.Context(), strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to")))
				if err != nil {
					status, msg := mapQueryError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			ar.Get("/v1/admin/admins", func(w http.ResponseWriter, r *http.Request) {
				out, err := d.AdminSvc.ListAdmins(r.Context())
				if err != nil {
					status, msg := mapAdminError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, map[string]any{"admins": out})
			})

			ar.Post("/v1/admin/admins", func(w http.ResponseWriter, r *http.Request) {
				au, _ := middleware.GetAuthUser(r.Context())

				var in admin.GrantInput
				if !readJSON(w, r, &in) {
					return
				}
				in.Trim()

				out, err := d.AdminSvc.Grant(r.Context(), au.UID, in)
				if err != nil {
					status, msg := mapAdminError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			ar.Delete("/v1/admin/admins/{uid}", func(w http.ResponseWriter, r *http.Request) {
				au, _ := middleware.GetAuthUser(r.Context())
				out, err := d.AdminSvc.Revoke(r.Context(), au.UID, chi.URLParam(r, "uid"))
				if err != nil {
					status, msg := mapAdminError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})
		})
	})

	return r
}

// updateBookingStatus serves both the therapist and the admin status routes;
// the booking service decides what the caller may change.
func updateBookingStatus(d RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		au, _ := middleware.GetAuthUser(r.Context())

		var in struct {
			Status booking.Status `json:"status"`
		}
		if !readJSON(w, r, &in) {
			return
		}
		to := booking.Status(strings.ToLower(strings.TrimSpace(string(in.Status))))

		out, err := d.BookingSvc.UpdateStatus(r.Context(), actorOf(au), chi.URLParam(r, "id"), to)
		if err != nil {
			status, msg := mapBookingError(err)
			Fail(w, status, msg)
			return
		}
		WriteJSON(w, 200, out)
	}
}

func actorOf(au *middleware.AuthUser) booking.Actor {
	return booking.Actor{UID: au.UID, Admin: au.Admin(), TherapistID: au.TherapistID()}
}
