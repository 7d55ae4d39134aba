// backend/src/processors/annotation_processor.go
package processors

import (
	"fmt"

	"github.com/username/tradereview/backend/src/models"
)

type annotationProcessorImpl struct{}

func NewAnnotationProcessor() AnnotationProcessor {
	return &annotationProcessorImpl{}
}

// Process builds one chart annotation per buy or sell, e.g. "12/05 買 1055円 100株".
// The price is truncated to whole yen; an unknown quantity is shown as "-".
func (p *annotationProcessorImpl) Process(records []models.TradeRecord) []models.TradeAnnotation {
	annotations := make([]models.TradeAnnotation, 0, len(records))
	for _, r := range records {
		var label string
		switch r.Side {
		case models.SideBuy:
			label = "買"
		case models.SideSell:
			label = "売"
		default:
			continue
		}

		qty := "-"
		if r.Quantity.IsPositive() {
			qty = r.Quantity.String()
		}

		annotations = append(annotations, models.TradeAnnotation{
			Date:     r.TradeDate,
			Side:     r.Side,
			Price:    r.Price,
			Quantity: r.Quantity,
			Text:     fmt.Sprintf("%s %s %s円 %s株", r.TradeDate.Format("01/02"), label, r.Price.Truncate(0).String(), qty),
		})
	}
	return annotations
}
