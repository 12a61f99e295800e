package request

type TriggerScanRequest struct {
	Trigger string `json:"trigger"`
}
