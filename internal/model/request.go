package model

// InputKind describes what kind of payload an identification request carries.
type InputKind string

const (
	InputText    InputKind = "text"    // free-text description of a bottle
	InputImage   InputKind = "image"   // label photo
	InputBarcode InputKind = "barcode" // UPC/EAN digits as text
)

// IdentificationRequest is the input to one identification. It is immutable
// once accepted; a caller correction arrives as a new request with
// PriorContext set.
type IdentificationRequest struct {
	ID           string    `json:"id"`
	Kind         InputKind `json:"kind"`
	Text         string    `json:"text,omitempty"`
	ImageBytes   []byte    `json:"image_bytes,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	PriorContext string    `json:"prior_context,omitempty"`
}

// Validate checks that the request payload matches its declared kind.
func (r IdentificationRequest) Validate() error {
	switch r.Kind {
	case InputText, InputBarcode:
		if r.Text == "" {
			return ErrEmptyInput
		}
	case InputImage:
		if len(r.ImageBytes) == 0 {
			return ErrEmptyInput
		}
		if r.MimeType == "" {
			return ErrMissingMimeType
		}
	default:
		return ErrUnknownInputKind
	}
	return nil
}
