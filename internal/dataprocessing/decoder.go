package dataprocessing

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicommart/internal/errors"
)

// Part 10 files start with a 128 byte preamble followed by "DICM".
const preambleLen = 128

var dicmMagic = []byte("DICM")

// Decoder turns one object's raw bytes into a Decoded record.
type Decoder interface {
	Decode(raw []byte) (Decoded, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(raw []byte) (Decoded, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(raw []byte) (Decoded, error) { return f(raw) }

// DICOMDecoder parses DICOM Part 10 payloads. Pixel data is skipped.
type DICOMDecoder struct {
	logger *slog.Logger
}

// NewDICOMDecoder creates a DICOM decoder.
func NewDICOMDecoder(logger *slog.Logger) *DICOMDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &DICOMDecoder{logger: logger.With(slog.String("component", "dicom_decoder"))}
}

// Decode parses raw and flattens its top-level elements into a MapRecord
// keyed by DICOM keyword. Sequences and unknown private tags are left out.
func (d *DICOMDecoder) Decode(raw []byte) (rec Decoded, err error) {
	if len(raw) == 0 {
		return nil, errors.NewDecodeError("empty payload", nil)
	}
	if len(raw) < preambleLen+len(dicmMagic) || !bytes.Equal(raw[preambleLen:preambleLen+len(dicmMagic)], dicmMagic) {
		return nil, errors.NewDecodeError("missing DICM magic after preamble", nil).
			WithContext("size", len(raw))
	}

	// The parser panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = errors.NewDecodeError("parse dicom", fmt.Errorf("parser panic: %v", r))
		}
	}()

	ds, err := dicom.Parse(bytes.NewReader(raw), int64(len(raw)), nil, dicom.SkipPixelData())
	if err != nil {
		return nil, errors.NewDecodeError("parse dicom", err)
	}

	out := make(MapRecord, len(ds.Elements))
	for _, el := range ds.Elements {
		if el == nil || el.Value == nil {
			continue
		}
		info, err := tag.Find(el.Tag)
		if err != nil || info.Name == "" {
			continue
		}
		if _, seen := out[info.Name]; seen {
			continue
		}
		switch el.Value.ValueType() {
		case dicom.Strings, dicom.Ints, dicom.Floats:
			out[info.Name] = el.Value.GetValue()
		}
	}

	d.logger.Debug("decoded dicom object", slog.Int("elements", len(out)))
	return out, nil
}
