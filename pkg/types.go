package pkg

import (
	"fmt"
	"strings"
	"time"
)

// MessageType describes how a farmer produced a chat message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVoice MessageType = "voice"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVoice:
		return true
	}
	return false
}

// Priority is the urgency a farmer attaches to an officer escalation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// EscalationStatus tracks an escalation through the officer workflow.  Only
// pending is ever written by this service.
type EscalationStatus string

const (
	StatusPending  EscalationStatus = "pending"
	StatusAssigned EscalationStatus = "assigned"
	StatusResolved EscalationStatus = "resolved"
)

// Language is a translation source or target.
type Language string

const (
	LangEnglish   Language = "english"
	LangHindi     Language = "hindi"
	LangMalayalam Language = "malayalam"
)

// ParseLanguage normalises s and checks it against the supported languages.
func ParseLanguage(s string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case LangEnglish, LangHindi, LangMalayalam:
		return l, true
	}
	return "", false
}

// FarmerProfile is a registered farmer and their farming context.
type FarmerProfile struct {
	ID        string    `json:"id" bson:"id"`
	Name      string    `json:"name" bson:"name"`
	Phone     string    `json:"phone" bson:"phone"`
	Location  string    `json:"location" bson:"location"`
	Crops     []string  `json:"crops" bson:"crops"`
	FarmSize  *string   `json:"farm_size" bson:"farm_size,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ChatMessage is one persisted chat turn: the farmer's message and the reply
// that was returned for it.
type ChatMessage struct {
	ID          string      `json:"id" bson:"id"`
	FarmerID    string      `json:"farmer_id" bson:"farmer_id"`
	Message     string      `json:"message" bson:"message"`
	Response    string      `json:"response" bson:"response"`
	MessageType MessageType `json:"message_type" bson:"message_type"`
	ImageData   *string     `json:"image_data" bson:"image_data,omitempty"`
	SessionID   string      `json:"session_id" bson:"session_id"`
	CreatedAt   time.Time   `json:"created_at" bson:"created_at"`
}

// DiseaseDetection records a plant image analysis.
type DiseaseDetection struct {
	ID              string    `json:"id" bson:"id"`
	FarmerID        string    `json:"farmer_id" bson:"farmer_id"`
	ImageData       string    `json:"image_data" bson:"image_data"`
	DetectedDisease string    `json:"detected_disease" bson:"detected_disease"`
	Confidence      float64   `json:"confidence" bson:"confidence"`
	TreatmentAdvice string    `json:"treatment_advice" bson:"treatment_advice"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

// OfficerEscalation is a query handed over to a human agriculture officer.
type OfficerEscalation struct {
	ID        string           `json:"id" bson:"id"`
	FarmerID  string           `json:"farmer_id" bson:"farmer_id"`
	Query     string           `json:"query" bson:"query"`
	Priority  Priority         `json:"priority" bson:"priority"`
	Status    EscalationStatus `json:"status" bson:"status"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
}

// WeatherData is computed per request and never stored.
type WeatherData struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Rainfall    float64   `json:"rainfall"`
	Forecast    string    `json:"forecast"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidationError lists the request fields that were missing or malformed.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	if e.Reason == "" {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

// FarmerCreateRequest is the body of POST /farmers.  Required fields are
// pointers so that an absent field can be told apart from an empty one.
type FarmerCreateRequest struct {
	Name     *string  `json:"name"`
	Phone    *string  `json:"phone"`
	Location *string  `json:"location"`
	Crops    []string `json:"crops"`
	FarmSize *string  `json:"farm_size"`
}

func (r FarmerCreateRequest) Validate() error {
	var missing []string
	if r.Name == nil {
		missing = append(missing, "name")
	}
	if r.Phone == nil {
		missing = append(missing, "phone")
	}
	if r.Location == nil {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Profile converts a validated request into an unsaved profile.
func (r FarmerCreateRequest) Profile() *FarmerProfile {
	crops := r.Crops
	if crops == nil {
		crops = []string{}
	}
	return &FarmerProfile{
		Name:     *r.Name,
		Phone:    *r.Phone,
		Location: *r.Location,
		Crops:    crops,
		FarmSize: r.FarmSize,
	}
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	FarmerID    *string     `json:"farmer_id"`
	Message     *string     `json:"message"`
	MessageType MessageType `json:"message_type"`
	ImageData   *string     `json:"image_data"`
	SessionID   *string     `json:"session_id"`
}

// Validate checks required fields and fills in the default message type.
func (r *ChatRequest) Validate() error {
	var missing []string
	if r.FarmerID == nil {
		missing = append(missing, "farmer_id")
	}
	if r.Message == nil {
		missing = append(missing, "message")
	}
	if r.SessionID == nil {
		missing = append(missing, "session_id")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	if r.MessageType == "" {
		r.MessageType = MessageText
	}
	if !r.MessageType.Valid() {
		return &ValidationError{Fields: []string{"message_type"}, Reason: "message_type must be one of text, image, voice"}
	}
	return nil
}

// ChatReply is returned from POST /chat.
type ChatReply struct {
	Response  string    `json:"response"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// DetectionRequest carries the disease detection parameters.  They arrive as
// query or form parameters, or as a JSON body from newer clients.
type DetectionRequest struct {
	FarmerID    string `query:"farmer_id" form:"farmer_id" json:"farmer_id"`
	ImageData   string `query:"image_data" form:"image_data" json:"image_data"`
	Description string `query:"description" form:"description" json:"description"`
}

func (r DetectionRequest) Validate() error {
	var missing []string
	if r.FarmerID == "" {
		missing = append(missing, "farmer_id")
	}
	if r.ImageData == "" {
		missing = append(missing, "image_data")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// DetectionReply is returned from POST /detect-disease.
type DetectionReply struct {
	Analysis    string    `json:"analysis"`
	DetectionID string    `json:"detection_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// EscalationRequest carries the escalation parameters.
type EscalationRequest struct {
	FarmerID string   `query:"farmer_id" form:"farmer_id" json:"farmer_id"`
	Query    string   `query:"query" form:"query" json:"query"`
	Priority Priority `query:"priority" form:"priority" json:"priority"`
}

// Validate checks required fields and defaults the priority to medium.
func (r *EscalationRequest) Validate() error {
	var missing []string
	if r.FarmerID == "" {
		missing = append(missing, "farmer_id")
	}
	if r.Query == "" {
		missing = append(missing, "query")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if !r.Priority.Valid() {
		return &ValidationError{Fields: []string{"priority"}, Reason: "priority must be one of low, medium, high"}
	}
	return nil
}

// EscalationReply is returned from POST /escalate.
type EscalationReply struct {
	Message           string `json:"message"`
	EscalationID      string `json:"escalation_id"`
	EstimatedResponse string `json:"estimated_response"`
}

// TranslationRequest is the body of POST /translate.
type TranslationRequest struct {
	Text           *string `json:"text"`
	SourceLanguage string  `json:"source_language"`
	TargetLanguage string  `json:"target_language"`
}

// Validate checks the request and returns the parsed languages.
func (r TranslationRequest) Validate() (Language, Language, error) {
	var missing []string
	if r.Text == nil {
		missing = append(missing, "text")
	}
	if r.SourceLanguage == "" {
		missing = append(missing, "source_language")
	}
	if r.TargetLanguage == "" {
		missing = append(missing, "target_language")
	}
	if len(missing) > 0 {
		return "", "", &ValidationError{Fields: missing}
	}
	src, ok := ParseLanguage(r.SourceLanguage)
	if !ok {
		return "", "", &ValidationError{Fields: []string{"source_language"}, Reason: "unsupported language"}
	}
	dst, ok := ParseLanguage(r.TargetLanguage)
	if !ok {
		return "", "", &ValidationError{Fields: []string{"target_language"}, Reason: "unsupported language"}
	}
	return src, dst, nil
}

// TranslationResponse is returned from POST /translate.
type TranslationResponse struct {
	OriginalText   string   `json:"original_text"`
	TranslatedText string   `json:"translated_text"`
	SourceLanguage Language `json:"source_language"`
	TargetLanguage Language `json:"target_language"`
}
