package dto

// Editor message types sent by websocket clients.
const (
	EditorMessageEdit    = "edit"
	EditorMessageRun     = "run"
	EditorMessageSubmit  = "submit"
	EditorMessageReset   = "reset"
	EditorMessageAutoRun = "autorun"
)

// EditorMessage is one client instruction on the editor websocket.
type EditorMessage struct {
	Type    string  `json:"type" validate:"required,oneof=edit run submit reset autorun"`
	Code    *string `json:"code,omitempty" validate:"omitempty,max=65536"`
	Confirm bool    `json:"confirm,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}
