// Package uploads issues signed Cloud Storage URLs for therapist photos.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	credentialspb "cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const defaultExpiry = 15 * time.Minute

var (
	ErrBadRequest    = errors.New("bad request")
	ErrNotConfigured = errors.New("uploads not configured")
)

func IsErrBadRequest(err error) bool    { return errors.Is(err, ErrBadRequest) }
func IsErrNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }

var imageExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// SignFunc signs the V4 string-to-sign as the service account.
type SignFunc func(ctx context.Context, payload []byte) ([]byte, error)

type UploadURL struct {
	URL         string `json:"url"`
	Method      string `json:"method"`
	ContentType string `json:"contentType"`
	ObjectPath  string `json:"objectPath"`
	PublicURL   string `json:"publicUrl"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type Signer struct {
	bucket string
	email  string
	sign   SignFunc
	now    func() time.Time
}

func NewSigner(bucket, serviceAccountEmail string, sign SignFunc) *Signer {
	return &Signer{bucket: bucket, email: serviceAccountEmail, sign: sign, now: time.Now}
}

// NewIAMSigner signs through the IAM Credentials API. The returned close
// function releases the IAM client.
func NewIAMSigner(ctx context.Context, bucket, serviceAccountEmail string) (*Signer, func() error, error) {
	iam, err := credentials.NewIamCredentialsClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("iam credentials client: %w", err)
	}
	name := fmt.Sprintf("projects/-/serviceAccounts/%s", serviceAccountEmail)
	sign := func(ctx context.Context, payload []byte) ([]byte, error) {
		resp, err := iam.SignBlob(ctx, &credentialspb.SignBlobRequest{Name: name, Payload: payload})
		if err != nil {
			return nil, err
		}
		return resp.SignedBlob, nil
	}
	return NewSigner(bucket, serviceAccountEmail, sign), iam.Close, nil
}

// SignedUploadURL returns a V4 signed PUT URL for a new photo of therapistID.
func (s *Signer) SignedUploadURL(ctx context.Context, therapistID, contentType string) (*UploadURL, error) {
	if s == nil || s.bucket == "" || s.email == "" || s.sign == nil {
		return nil, fmt.Errorf("%w: set FIREBASE_STORAGE_BUCKET and SIGNED_URL_SERVICE_ACCOUNT_EMAIL", ErrNotConfigured)
	}
	therapistID = strings.TrimSpace(therapistID)
	if therapistID == "" || strings.ContainsAny(therapistID, "/\\") {
		return nil, fmt.Errorf("%w: invalid therapistId", ErrBadRequest)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExt[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: contentType must be image/jpeg, image/png or image/webp", ErrBadRequest)
	}

	objectPath := fmt.Sprintf("therapists/%s/%s.%s", therapistID, uuid.NewString(), ext)
	exp := s.now().Add(defaultExpiry)

	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "PUT",
		Expires:        exp,
		ContentType:    contentType,
		GoogleAccessID: s.email,
		SignBytes: func(b []byte) ([]byte, error) {
			return s.sign(ctx, b)
		},
	}
	url, err := storage.SignedURL(s.bucket, objectPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to sign url (check service account + permissions): %w", err)
	}

	return &UploadURL{
		URL:         url,
		Method:      "PUT",
		ContentType: contentType,
		ObjectPath:  objectPath,
		PublicURL:   fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, objectPath),
		ExpiresAt:   exp.Unix(),
	}, nil
}
