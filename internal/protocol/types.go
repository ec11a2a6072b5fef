package protocol

import (
	"encoding/json"
	"fmt"
)

// Vec is a 3D coordinate or direction vector. On the wire it is encoded
// as {"vec":[x,y,z]}.
type Vec struct {
	X int
	Y int
	Z int
}

func (v Vec) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

func (v Vec) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Vec [3]int `json:"vec"`
	}{[3]int{v.X, v.Y, v.Z}})
}

func (v *Vec) UnmarshalJSON(data []byte) error {
	var w struct {
		Vec []int `json:"vec"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("parse vec: %w", err)
	}
	if len(w.Vec) != 3 {
		return fmt.Errorf("parse vec: want 3 components, got %d", len(w.Vec))
	}
	v.X, v.Y, v.Z = w.Vec[0], w.Vec[1], w.Vec[2]
	return nil
}

// Vec2D is a 2D sector coordinate or direction vector, encoded as
// {"vec2":[x,y]}.
type Vec2D struct {
	X int
	Y int
}

func (v Vec2D) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Y)
}

// AsVec promotes a 2D vector to 3D with z = 0.
func (v Vec2D) AsVec() Vec {
	return Vec{X: v.X, Y: v.Y}
}

func (v Vec2D) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Vec [2]int `json:"vec2"`
	}{[2]int{v.X, v.Y}})
}

func (v *Vec2D) UnmarshalJSON(data []byte) error {
	var w struct {
		Vec []int `json:"vec2"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("parse vec2: %w", err)
	}
	if len(w.Vec) != 2 {
		return fmt.Errorf("parse vec2: want 2 components, got %d", len(w.Vec))
	}
	v.X, v.Y = w.Vec[0], w.Vec[1]
	return nil
}

// RadarEcho is one entry of a radarresponse message.
type RadarEcho struct {
	Sector Vec2D  `json:"sector"`
	Ground string `json:"ground"`
	Height int    `json:"height"`
}

// Rudder values accepted by the navigate command.
const (
	RudderLeft   = "Left"
	RudderCenter = "Center"
	RudderRight  = "Right"
)

// Course values accepted by the navigate command.
const (
	CourseForward  = "Forward"
	CourseBackward = "Backward"
)

// Route is a pilot target direction relative to the submarine's heading.
type Route string

const (
	RouteCenter    Route = "C"
	RouteNorth     Route = "N"
	RouteNorthEast Route = "NE"
	RouteEast      Route = "E"
	RouteSouthEast Route = "SE"
	RouteSouth     Route = "S"
	RouteSouthWest Route = "SW"
	RouteWest      Route = "W"
	RouteNorthWest Route = "NW"
	RouteUp        Route = "UP"
	RouteDown      Route = "DOWN"
	RouteNone      Route = "None"
)

var validRoutes = map[Route]bool{
	RouteCenter: true, RouteNorth: true, RouteNorthEast: true,
	RouteEast: true, RouteSouthEast: true, RouteSouth: true,
	RouteSouthWest: true, RouteWest: true, RouteNorthWest: true,
	RouteUp: true, RouteDown: true, RouteNone: true,
}

// ParseRoute converts a string into a Route, rejecting unknown values.
func ParseRoute(s string) (Route, error) {
	r := Route(s)
	if !validRoutes[r] {
		return "", fmt.Errorf("invalid route %q", s)
	}
	return r, nil
}

// ValidRudder reports whether s is a recognized rudder value.
func ValidRudder(s string) bool {
	return s == RudderLeft || s == RudderCenter || s == RudderRight
}

// ValidCourse reports whether s is a recognized course value.
func ValidCourse(s string) bool {
	return s == CourseForward || s == CourseBackward
}
