// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Kind distinguishes the two attendance event types.
type Kind string

const (
	// KindEntry marks the start of a working day.
	KindEntry Kind = "ENTRY"
	// KindExit marks the end of a working day.
	KindExit Kind = "EXIT"
)

// WireType returns the form value the remote endpoint expects for the kind.
func (k Kind) WireType() string {
	if k == KindExit {
		return "check_out"
	}
	return "check_in"
}

// DefaultNote returns the note text recorded when the caller supplies none.
func (k Kind) DefaultNote() string {
	if k == KindExit {
		return "Fin de jornada laboral"
	}
	return "Inicio de jornada laboral"
}

// NetworkClass labels the active network at capture time.
type NetworkClass string

const (
	NetworkWifi     NetworkClass = "WIFI"
	NetworkCellular NetworkClass = "MOVIL"
	NetworkOther    NetworkClass = "OTRO"
	NetworkNone     NetworkClass = "SIN_CONEXION"
)

// Attendance is a single check-in/out event as stored on the device.
//
// Token is the client-generated idempotency key; it is assigned once at
// creation and never changes, so retried deliveries of the same record
// deduplicate server-side. Synced only ever transitions false->true.
type Attendance struct {
	ID         int64     // local autoincrement PK
	Token      uuid.UUID // idempotency token, immutable
	Timestamp  time.Time // capture instant
	Latitude   float64
	Longitude  float64
	Note       string
	Kind       Kind
	Device     string // device model
	Battery    int    // battery percentage 0-100
	Signal     int    // signal-strength bucket 0-4
	Network    NetworkClass
	Online     bool   // internet reachable at capture time
	PhotoPath  string // local photo blob; cleared after server receipt
	Synced     bool   // false until the server confirms receipt
	Address    string // resolved human-readable address, may be empty
	RetryCount int    // delivery attempts that failed so far
	ServerID   *int64 // server-assigned id once synced
}

// Fix is a single position fix, either live or recalled from cache.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // radius in meters
	Time      time.Time
	Mock      bool // platform reported a mock/injected provider
}

// UsableAsFallback reports whether a cached fix is still trustworthy.
func (f Fix) UsableAsFallback(now time.Time, maxAge time.Duration, maxAccuracy float64) bool {
	return now.Sub(f.Time) <= maxAge && f.Accuracy <= maxAccuracy
}

// Session is the authenticated identity used to authorize submissions.
type Session struct {
	UserID  int64
	Token   string // bearer credential
	Name    string
	Email   string
	EmpCode string
	Roles   []string
}

// Valid reports whether the session carries an identity and a credential.
func (s Session) Valid() bool { return s.UserID != 0 && s.Token != "" }

// Ack is the result of one submission attempt.
type Ack struct {
	Message  string
	Queued   bool   // true when saved locally but not yet delivered
	ServerID *int64 // set when the server confirmed receipt
}

// SyncResult reports the outcome of one record during backlog reconciliation.
type SyncResult struct {
	ID int64
	OK bool
}

// Telemetry is the device state captured alongside an attendance event.
type Telemetry struct {
	DeviceModel string
	Battery     int
	Signal      int
	Network     NetworkClass
	Online      bool
}
