package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/h2non/bimg"

	"github.com/fleveque/site-ledger/internal/storage"
)

// DefaultMaxReceiptDimension keeps the long edge within what the vision
// models read without further downscaling on their side.
const DefaultMaxReceiptDimension = 1568

// ReceiptProcessor normalizes uploaded receipt photos before they are sent
// to a model: EXIF auto-rotation, metadata stripped (phone photos carry GPS),
// long edge capped, re-encoded as JPEG. It uses bimg (Go bindings for
// libvips), so libvips must be installed on the host.
type ReceiptProcessor struct {
	store        *storage.ReceiptStore
	maxDimension int
	quality      int
}

// NewReceiptProcessor creates a ReceiptProcessor. A zero maxDimension uses
// DefaultMaxReceiptDimension.
func NewReceiptProcessor(store *storage.ReceiptStore, maxDimension int) *ReceiptProcessor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxReceiptDimension
	}
	return &ReceiptProcessor{store: store, maxDimension: maxDimension, quality: 85}
}

// Prepare returns a JPEG version of the image that fits within the max
// dimension. Anything libvips cannot decode is ErrInvalidInput.
func (p *ReceiptProcessor) Prepare(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, invalidInput("receipt image is empty")
	}

	// bimg.NewImage wraps raw bytes; it doesn't copy them.
	img := bimg.NewImage(data)
	size, err := img.Size()
	if err != nil {
		return nil, invalidInput("unreadable receipt image: %v", err)
	}

	opts := bimg.Options{
		Type:           bimg.JPEG,
		Quality:        p.quality,
		StripMetadata:  true,
		Interpretation: bimg.InterpretationSRGB,
	}
	// Setting only one side keeps the aspect ratio.
	if size.Width >= size.Height && size.Width > p.maxDimension {
		opts.Width = p.maxDimension
	} else if size.Height > size.Width && size.Height > p.maxDimension {
		opts.Height = p.maxDimension
	}

	out, err := img.Process(opts)
	if err != nil {
		return nil, fmt.Errorf("processing receipt image: %w", err)
	}
	return out, nil
}

// Save stores a prepared receipt for the user and returns its id.
func (p *ReceiptProcessor) Save(userID string, jpeg []byte) (string, error) {
	id := uuid.NewString()
	if err := p.store.Write(userID, id, jpeg); err != nil {
		return "", fmt.Errorf("saving receipt: %w", err)
	}
	return id, nil
}
