package ws

import "encoding/json"

const Version = "1.0"

const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeFocus   = "FOCUS"
	TypeRow     = "ROW"
	TypeClear   = "CLEAR"
	TypeRefresh = "REFRESH"
)

type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ClientID        string   `json:"client_id"`
	Seed            int64    `json:"seed"`
	ChunkSize       [2]int   `json:"chunk_size"`
	Outputs         []string `json:"outputs"`
}

// FocusMsg moves the streaming focus to a world tile position.
type FocusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
}

// RowMsg carries one generated row; an empty tile clears the cell.
type RowMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	CX              int      `json:"cx"`
	CY              int      `json:"cy"`
	Output          string   `json:"output"`
	Y               int      `json:"y"`
	Tiles           []string `json:"tiles,omitempty"`
	Cells           [][2]int `json:"cells,omitempty"`
}
