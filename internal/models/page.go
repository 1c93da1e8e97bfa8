package models

import (
	"image"
)

// ProcessingStatus is the lifecycle state of a page within a run
type ProcessingStatus string

const (
	PageStatusPending    ProcessingStatus = "pending"
	PageStatusProcessing ProcessingStatus = "processing"
	PageStatusCompleted  ProcessingStatus = "completed"
	PageStatusError      ProcessingStatus = "error"
)

// VisionFallbackOffer is an unexercised option to re-run extraction on the raw page image.
// It is never acted on by the pipeline itself.
type VisionFallbackOffer struct {
	Available bool
	Image     image.Image
	Reason    string
}

// Page is the per-run working state of one document page.
// Pages are created at the start of a run and discarded when it ends.
type Page struct {
	PageNumber          int
	HasText             bool
	HasImages           bool
	TextContent         string
	RasterImage         image.Image
	ExtractedQuestions  []ExtractedQuestion
	ProcessingStatus    ProcessingStatus
	Error               string
	OCRFailed           bool
	VisionFallbackOffer *VisionFallbackOffer
}

// NewPage creates a pending page
func NewPage(pageNumber int) *Page {
	return &Page{
		PageNumber:         pageNumber,
		ProcessingStatus:   PageStatusPending,
		ExtractedQuestions: []ExtractedQuestion{},
	}
}

// OfferVisionFallback attaches a vision fallback offer for the page raster
func (p *Page) OfferVisionFallback(reason string) {
	p.VisionFallbackOffer = &VisionFallbackOffer{
		Available: p.RasterImage != nil,
		Image:     p.RasterImage,
		Reason:    reason,
	}
}

// Fail marks the page as errored with the given reason
func (p *Page) Fail(reason string) {
	p.ProcessingStatus = PageStatusError
	p.Error = reason
}

// PageReport is the manifest entry describing how a page was handled
type PageReport struct {
	PageNumber    int              `json:"page_number" yaml:"page_number"`
	Status        ProcessingStatus `json:"status" yaml:"status"`
	HasText       bool             `json:"has_text" yaml:"has_text"`
	HasImages     bool             `json:"has_images" yaml:"has_images"`
	QuestionCount int              `json:"question_count" yaml:"question_count"`
	OCRFailed     bool             `json:"ocr_failed,omitempty" yaml:"ocr_failed,omitempty"`
	VisionOffered bool             `json:"vision_fallback_offered,omitempty" yaml:"vision_fallback_offered,omitempty"`
	Error         string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report summarises the page for the run manifest
func (p *Page) Report() PageReport {
	return PageReport{
		PageNumber:    p.PageNumber,
		Status:        p.ProcessingStatus,
		HasText:       p.HasText,
		HasImages:     p.HasImages,
		QuestionCount: len(p.ExtractedQuestions),
		OCRFailed:     p.OCRFailed,
		VisionOffered: p.VisionFallbackOffer != nil,
		Error:         p.Error,
	}
}
