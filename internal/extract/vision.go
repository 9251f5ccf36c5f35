package extract

import (
	"context"
	"fmt"
	"slices"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

// VisionOCR implements OCR with Google Cloud Vision document text detection.
type VisionOCR struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionOCR wraps an existing client.
func NewVisionOCR(client *vision.ImageAnnotatorClient) *VisionOCR {
	return &VisionOCR{client: client}
}

func (v *VisionOCR) Name() string {
	return "google-vision"
}

func (v *VisionOCR) RecognizeImage(ctx context.Context, data []byte) (Page, error) {
	const op = "RecognizeImage"
	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return Page{}, wrap(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return Page{}, wrap(op, ErrOCRFailed, "no response from Vision API")
	}
	return pageFromAnnotation(1, resp.Responses[0])
}

// RecognizePDF annotates a scanned PDF synchronously. Vision only returns
// the first five pages this way.
func (v *VisionOCR) RecognizePDF(ctx context.Context, data []byte) ([]Page, error) {
	const op = "RecognizePDF"
	resp, err := v.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{Content: data, MimeType: "application/pdf"},
			Features:    []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return nil, wrap(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, wrap(op, ErrOCRFailed, "no response from Vision API")
	}
	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, wrap(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	pages := make([]Page, 0, len(fileResp.Responses))
	for i, r := range fileResp.Responses {
		number := i + 1
		if r.Context != nil && r.Context.PageNumber > 0 {
			number = int(r.Context.PageNumber)
		}
		p, err := pageFromAnnotation(number, r)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func pageFromAnnotation(number int, r *visionpb.AnnotateImageResponse) (Page, error) {
	if r.Error != nil {
		return Page{}, wrap("annotate", ErrOCRFailed, fmt.Sprintf("page %d: %s", number, r.Error.Message))
	}
	if r.FullTextAnnotation == nil {
		return newPage(number, "", nil), nil
	}
	return newPage(number, r.FullTextAnnotation.Text, annotationLanguages(r.FullTextAnnotation)), nil
}

// annotationLanguages collects page-level detected languages, most
// confident first.
func annotationLanguages(a *visionpb.TextAnnotation) []string {
	type scored struct {
		code       string
		confidence float32
	}
	var found []scored
	for _, p := range a.Pages {
		if p.Property == nil {
			continue
		}
		for _, l := range p.Property.DetectedLanguages {
			if l.LanguageCode == "" {
				continue
			}
			idx := slices.IndexFunc(found, func(s scored) bool { return s.code == l.LanguageCode })
			if idx < 0 {
				found = append(found, scored{l.LanguageCode, l.Confidence})
			} else if l.Confidence > found[idx].confidence {
				found[idx].confidence = l.Confidence
			}
		}
	}
	slices.SortStableFunc(found, func(a, b scored) int {
		switch {
		case a.confidence > b.confidence:
			return -1
		case a.confidence < b.confidence:
			return 1
		}
		return 0
	})
	codes := make([]string, 0, len(found))
	for _, s := range found {
		codes = append(codes, s.code)
	}
	return codes
}

func (v *VisionOCR) Close() error {
	return v.client.Close()
}
