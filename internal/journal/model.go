package journal

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// Models is the list of tables the journal migrates.
var Models = []interface{}{
	&Session{},
	&Cycle{},
	&Failure{},
	&Event{},
	&StatusSample{},
}

// Session is one run of the client.
type Session struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	StartedAt time.Time `json:"startedAt"`
	DeviceID  string    `json:"deviceId" gorm:"size:64"`
	Variant   string    `json:"variant" gorm:"size:32"`
	Platform  string    `json:"platform" gorm:"size:32"`
	Build     string    `json:"build" gorm:"size:32"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Cycle is a completed synchronization cycle.
type Cycle struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_cycle_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time `json:"time"`
	Cycle     int64     `json:"cycle" gorm:"index:idx_cycle_number"`
	URL       string    `json:"url" gorm:"size:512"`
	Layer     string    `json:"layer" gorm:"size:128"`

	Position   geom.Point `json:"position" gorm:"type:bytes"` // device position, lon/lat
	Pages      int        `json:"pages"`
	Objects    int        `json:"objects"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Deleted    int        `json:"deleted"`
	Triggers   int        `json:"triggers"`
	DurationMs int64      `json:"durationMs"`
}

func (*Cycle) TableName() string {
	return "cycles"
}

// Failure is a terminal loop error.
type Failure struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_failure_session_id"`
	Session   Session    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time  `json:"time"`
	Cycle     int64      `json:"cycle"`
	URL       string     `json:"url" gorm:"size:512"`
	Layer     string     `json:"layer" gorm:"size:128"`
	Kind      string     `json:"kind" gorm:"size:32;index:idx_failure_kind"`
	Message   string     `json:"message"`
	Position  geom.Point `json:"position" gorm:"type:bytes"`
}

func (*Failure) TableName() string {
	return "failures"
}

// Event keeps the remaining loop events (header, info, layer items) with
// their payload as JSON.
type Event struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_event_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time      `json:"time"`
	Kind      string         `json:"kind" gorm:"size:32"`
	Cycle     int64          `json:"cycle"`
	Payload   datatypes.JSON `json:"payload"`
}

func (*Event) TableName() string {
	return "events"
}

// StatusSample is one monitor snapshot.
type StatusSample struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_status_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time      `json:"time"`
	State     string         `json:"state" gorm:"size:32"`
	Cycle     int64          `json:"cycle"`
	Objects   int            `json:"objects"`
	Pois      int            `json:"pois"`
	Bundles   int            `json:"bundles"`
	Images    int            `json:"images"`
	Payload   datatypes.JSON `json:"payload"`
}

func (*StatusSample) TableName() string {
	return "status_samples"
}
