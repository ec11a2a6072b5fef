// Package protocol implements the line-delimited JSON wire format spoken
// on both the ocean server connection and submarine agent connections.
// Every message is a single JSON object terminated by a newline, with a
// "cmd" field naming the message kind.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message kinds sent to the ocean server.
const (
	CmdLaunch   = "launch"
	CmdNavigate = "navigate"
	CmdScan     = "scan"
	CmdRadar    = "radar"
	CmdExit     = "exit"
)

// Message kinds received from the ocean server.
const (
	CmdLaunched      = "launched"
	CmdMessage       = "message"
	CmdMove2D        = "move2d"
	CmdCrash         = "crash"
	CmdScanned       = "scanned"
	CmdRadarResponse = "radarresponse"
)

// Message kinds on submarine connections. CmdMessage and CmdCrash are
// shared with the ocean protocol.
const (
	CmdReady   = "ready"
	CmdMeasure = "measure"
	CmdPicture = "picture"
	CmdArise   = "arise"
	CmdPilot   = "pilot"
)

// Envelope is one decoded message. Cmd is the discriminator; Raw holds
// the full JSON object for kind-specific parsing.
type Envelope struct {
	Cmd string
	Raw json.RawMessage
}

// Decode parses one line into an Envelope. It fails on malformed JSON or
// a missing cmd field; unknown kinds decode successfully.
func Decode(line []byte) (*Envelope, error) {
	var head struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if head.Cmd == "" {
		return nil, fmt.Errorf("decode message: missing cmd field")
	}
	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	return &Envelope{Cmd: head.Cmd, Raw: raw}, nil
}

// Encode marshals a message struct into a single newline-terminated line.
// The struct must carry its own cmd field.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if bytes.ContainsRune(data, '\n') {
		return nil, fmt.Errorf("encode message: payload contains newline")
	}
	return append(data, '\n'), nil
}

// Launch registers a new ship with the ocean server.
type Launch struct {
	Cmd    string `json:"cmd"`
	Name   string `json:"name"`
	Typ    string `json:"typ"`
	Sector Vec2D  `json:"sector"`
	Dir    Vec2D  `json:"dir"`
}

func NewLaunch(name string, sector, dir Vec2D) Launch {
	return Launch{Cmd: CmdLaunch, Name: name, Typ: "ship", Sector: sector, Dir: dir}
}

// Navigate steers the ship.
type Navigate struct {
	Cmd    string `json:"cmd"`
	Rudder string `json:"rudder"`
	Course string `json:"course"`
}

func NewNavigate(rudder, course string) Navigate {
	return Navigate{Cmd: CmdNavigate, Rudder: rudder, Course: course}
}

// Plain is a message with no fields beyond its kind (scan, radar, exit).
type Plain struct {
	Cmd string `json:"cmd"`
}

// Pilot steers a submarine. Action is meaningful only with RouteNone and
// is encoded as an explicit JSON null when empty.
type Pilot struct {
	Cmd    string  `json:"cmd"`
	Route  Route   `json:"route"`
	Action *string `json:"action"`
}

func NewPilot(route Route, action string) Pilot {
	p := Pilot{Cmd: CmdPilot, Route: route}
	if action != "" {
		p.Action = &action
	}
	return p
}

// Launched acknowledges a launch and assigns the ship id.
type Launched struct {
	ID     string `json:"id"`
	Sector *Vec2D `json:"sector"`
	AbsPos *Vec   `json:"abspos"`
}

// Move2D reports the ship's position after a navigate step.
type Move2D struct {
	Sector *Vec2D `json:"sector"`
	Dir    *Vec2D `json:"dir"`
	AbsPos *Vec   `json:"abspos"`
}

// Info is a free-form status message from either peer.
type Info struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Pos  *Vec   `json:"pos"`
}

// Crash reports that a ship or submarine sank. The remote side closes
// its connection after sending this.
type Crash struct {
	Message string `json:"message"`
	Sector  *Vec2D `json:"sector"`
	SunkPos *Vec   `json:"sunkPos"`
}

// Scanned is the answer to a scan command.
type Scanned struct {
	ID     string  `json:"id"`
	Depth  int     `json:"depth"`
	StdDev float64 `json:"stddev"`
}

// RadarResponse is the answer to a radar command.
type RadarResponse struct {
	Echos []RadarEcho `json:"echos"`
}

// Ready is a submarine's handshake; it carries the id under which the
// session becomes addressable.
type Ready struct {
	ID       string `json:"id"`
	Pos      *Vec   `json:"pos"`
	Dir      *Vec   `json:"dir"`
	Depth    int    `json:"depth"`
	Distance int    `json:"distance"`
}

// Measure is a batch of ground measurement points.
type Measure struct {
	Vecs []Vec `json:"vecs"`
}

// Picture carries a hex-encoded PNG taken by the submarine.
type Picture struct {
	Picture string `json:"picture"`
}

// Arise reports a submarine surfacing.
type Arise struct {
	ArisePos *Vec `json:"arisePos"`
}

// ParseLaunched extracts a Launched payload from an envelope.
func ParseLaunched(env *Envelope) (*Launched, error) {
	var p Launched
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse launched: %w", err)
	}
	return &p, nil
}

// ParseMove2D extracts a Move2D payload from an envelope.
func ParseMove2D(env *Envelope) (*Move2D, error) {
	var p Move2D
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse move2d: %w", err)
	}
	return &p, nil
}

// ParseInfo extracts an Info payload from an envelope.
func ParseInfo(env *Envelope) (*Info, error) {
	var p Info
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if p.Type == "" {
		p.Type = "info"
	}
	return &p, nil
}

// ParseCrash extracts a Crash payload from an envelope.
func ParseCrash(env *Envelope) (*Crash, error) {
	var p Crash
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse crash: %w", err)
	}
	if p.Message == "" {
		p.Message = "Crash"
	}
	return &p, nil
}

// ParseScanned extracts a Scanned payload from an envelope.
func ParseScanned(env *Envelope) (*Scanned, error) {
	var p Scanned
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse scanned: %w", err)
	}
	return &p, nil
}

// ParseRadarResponse extracts a RadarResponse payload from an envelope.
func ParseRadarResponse(env *Envelope) (*RadarResponse, error) {
	var p RadarResponse
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse radarresponse: %w", err)
	}
	if p.Echos == nil {
		p.Echos = []RadarEcho{}
	}
	return &p, nil
}

// ParseReady extracts a Ready payload from an envelope.
func ParseReady(env *Envelope) (*Ready, error) {
	var p Ready
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse ready: %w", err)
	}
	return &p, nil
}

// ParseMeasure extracts a Measure payload from an envelope.
func ParseMeasure(env *Envelope) (*Measure, error) {
	var p Measure
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse measure: %w", err)
	}
	return &p, nil
}

// ParsePicture extracts a Picture payload from an envelope.
func ParsePicture(env *Envelope) (*Picture, error) {
	var p Picture
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse picture: %w", err)
	}
	return &p, nil
}

// ParseArise extracts an Arise payload from an envelope.
func ParseArise(env *Envelope) (*Arise, error) {
	var p Arise
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse arise: %w", err)
	}
	return &p, nil
}

// ParsePilot extracts a Pilot payload from an envelope.
func ParsePilot(env *Envelope) (*Pilot, error) {
	var p Pilot
	if err := json.Unmarshal(env.Raw, &p); err != nil {
		return nil, fmt.Errorf("parse pilot: %w", err)
	}
	return &p, nil
}
