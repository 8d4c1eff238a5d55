package models

// SOAPNote is a drafted clinical note
type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
	Raw        string `json:"raw,omitempty"`
}
