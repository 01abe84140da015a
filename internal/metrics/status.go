package metrics

import "strings"

// Status labels used by the sales team. Matching is on the lower-cased status.
const (
	labelMeasurement                 = "замер"
	labelContractMention             = "договор"
	labelPushAfterMeasurement        = "дожать (был замер)"
	labelCallBeforeMeasurement       = "созвон до замера"
	labelCallBeforeMeasurementUrgent = "созвон до замера важно"
	labelMissedCall                  = "недозвон"

	statusContract = "Договор"
	statusRefusal  = "Отказ"
)

// StatusClass is every category a single status falls into. Categories overlap.
type StatusClass struct {
	Measurement bool
	Contract    bool
	Refusal     bool
	InProgress  bool

	CallBeforeMeasurement          bool
	CallBeforeMeasurementImportant bool
	PushAfterMeasurement           bool
	MissedCall                     bool
	MeasurementInProgress          bool
}

func Classify(status string) StatusClass {
	status = strings.TrimSpace(status)
	lower := strings.ToLower(status)

	push := strings.Contains(lower, labelPushAfterMeasurement)
	urgent := strings.Contains(lower, labelCallBeforeMeasurementUrgent)
	call := strings.Contains(lower, labelCallBeforeMeasurement)
	missed := strings.Contains(lower, labelMissedCall)
	measured := mentionsMeasurement(lower)

	return StatusClass{
		Measurement: measured || push || strings.Contains(lower, labelContractMention),
		Contract:    status == statusContract,
		Refusal:     status == statusRefusal,
		InProgress:  urgent || call || missed || push || strings.Contains(lower, labelMeasurement),

		CallBeforeMeasurement:          call && !urgent,
		CallBeforeMeasurementImportant: urgent,
		PushAfterMeasurement:           push,
		MissedCall:                     missed,
		MeasurementInProgress:          strings.Contains(lower, labelMeasurement) && !push,
	}
}

// mentionsMeasurement reports "замер" outside of the pre-measurement call labels, which
// describe a call scheduled before any measurement took place.
func mentionsMeasurement(lower string) bool {
	return strings.Contains(strings.ReplaceAll(lower, labelCallBeforeMeasurement, ""), labelMeasurement)
}
