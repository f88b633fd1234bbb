// Package photos holds the categorized photo set a report is generated from
package photos

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"inspection-chat/models"
)

// Categories in display order
var Categories = []string{
	"Roofing",
	"Exterior",
	"Living Areas & Bedrooms",
	"Kitchen",
	"Bathroom",
	"Basement & Foundation",
	"Utilities",
}

// Descriptions gives a one-line hint for each category
var Descriptions = map[string]string{
	"Roofing":                 "Roof conditions, shingles, gutters",
	"Exterior":                "Siding, foundation, windows",
	"Living Areas & Bedrooms": "Main living spaces and bedrooms",
	"Kitchen":                 "Appliances, cabinets, counters",
	"Bathroom":                "Fixtures, tiles and plumbing",
	"Basement & Foundation":   "Structure and basement areas",
	"Utilities":               "HVAC, furnace, electrical, plumbing",
}

const (
	MaxPerCategory = 3
	MaxTotal       = 10
	MaxPhotoBytes  = 4 << 20
	JPEGQuality    = 30
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrCategoryFull    = fmt.Errorf("max %d photos per category", MaxPerCategory)
	ErrSetFull         = fmt.Errorf("max %d photos reached", MaxTotal)
	ErrTooLarge        = errors.New("compressed image still exceeds 4MB limit")
)

// IsCategory reports whether name is one of Categories
func IsCategory(name string) bool {
	_, ok := Descriptions[name]
	return ok
}

// Set is an ordered, size-limited collection of photos. It is not safe for
// concurrent use
type Set struct {
	byCategory map[string][]models.Photo
	total      int
}

// NewSet creates an empty photo set
func NewSet() *Set {
	return &Set{byCategory: make(map[string][]models.Photo)}
}

// Add compresses data and adds it under category
func (s *Set) Add(category string, data []byte) (models.Photo, error) {
	if err := s.check(category); err != nil {
		return models.Photo{}, err
	}
	compressed, ct := Compress(data)
	if len(compressed) > MaxPhotoBytes {
		return models.Photo{}, ErrTooLarge
	}
	p := models.Photo{
		Category:    category,
		Ref:         uuid.NewString(),
		ContentType: ct,
		Data:        compressed,
	}
	s.put(p)
	return p, nil
}

func (s *Set) check(category string) error {
	if !IsCategory(category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if s.total >= MaxTotal {
		return ErrSetFull
	}
	if len(s.byCategory[category]) >= MaxPerCategory {
		return ErrCategoryFull
	}
	return nil
}

func (s *Set) put(p models.Photo) {
	s.byCategory[p.Category] = append(s.byCategory[p.Category], p)
	s.total++
}

// Remove drops the photo with the given ref
func (s *Set) Remove(ref string) bool {
	for cat, list := range s.byCategory {
		for i, p := range list {
			if p.Ref != ref {
				continue
			}
			s.byCategory[cat] = append(list[:i:i], list[i+1:]...)
			s.total--
			return true
		}
	}
	return false
}

// Len returns the number of photos in the set
func (s *Set) Len() int { return s.total }

// Count returns how many photos category holds
func (s *Set) Count(category string) int { return len(s.byCategory[category]) }

// Photos flattens the set in category order, insertion order within a category
func (s *Set) Photos() []models.Photo {
	out := make([]models.Photo, 0, s.total)
	for _, cat := range Categories {
		out = append(out, s.byCategory[cat]...)
	}
	return out
}

// Compress re-encodes data as a low quality JPEG. Data that does not decode
// as an image is returned unchanged
func Compress(data []byte) ([]byte, string) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, http.DetectContentType(data)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return data, http.DetectContentType(data)
	}
	return buf.Bytes(), "image/jpeg"
}
