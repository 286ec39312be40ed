package models

type GenerateAnimationRequest struct {
	// Portrait image as a data URL or http(s) URL
	Image string `json:"image" example:"data:image/jpeg;base64,/9j/4AAQ..."`
	// Driving video as a data URL or http(s) URL
	Video string `json:"video" example:"data:video/mp4;base64,AAAAIGZ0eXBpc29t..."`
}

type TalkingPortraitRequest struct {
	Seed           *int     `json:"seed,omitempty"`
	Audio          string   `json:"audio"`
	Image          string   `json:"image"`
	DynamicScale   *float64 `json:"dynamic_scale,omitempty" example:"1.0"`
	MinResolution  *int     `json:"min_resolution,omitempty" example:"512"`
	InferenceSteps *int     `json:"inference_steps,omitempty" example:"25"`
	KeepResolution *bool    `json:"keep_resolution,omitempty"`
}

type VoiceCloneRequest struct {
	Text        string `json:"text"`
	PromptText  string `json:"prompt_text,omitempty"`
	ChunkLength *int   `json:"chunk_length,omitempty" example:"200"`
	VoiceSample string `json:"voice_sample"`
}

type DeductRequest struct {
	Feature string `json:"feature" example:"voice_clone"`
}

// UpgradeAccountRequest names the anonymous account to claim. The access
// token proves the caller holds that anonymous session.
type UpgradeAccountRequest struct {
	AnonymousUserID string `json:"anonymous_user_id"`
	AnonymousToken  string `json:"anonymous_token"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Redirect  string `json:"redirect,omitempty"`
}
