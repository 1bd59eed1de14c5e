package models

import "time"

// MaxStations is the number of work-station slots a catalog entry and an MO record carry.
const MaxStations = 9

// Response statuses for the tagged result envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// StationSpec is one production step with its standard processing time.
// An empty Name marks an absent slot.
type StationSpec struct {
	Name                string  `json:"name"`
	StandardTimeSeconds float64 `json:"standard_time_seconds"`
}

// Stations is the fixed-width station list. Enumeration stops at the first
// slot with an empty name.
type Stations [MaxStations]StationSpec

// Defined returns the stations up to (not including) the first empty slot.
func (s Stations) Defined() []StationSpec {
	out := make([]StationSpec, 0, MaxStations)
	for _, st := range s {
		if st.Name == "" {
			break
		}
		out = append(out, st)
	}
	return out
}

// StationsFrom packs at most MaxStations entries into a fixed-width list.
// Entries after the first empty name are dropped.
func StationsFrom(list []StationSpec) Stations {
	var s Stations
	for i, st := range list {
		if i >= MaxStations || st.Name == "" {
			break
		}
		s[i] = st
	}
	return s
}

// CatalogEntry is one product in the catalog, keyed by PartNo.
type CatalogEntry struct {
	PartNo         string   `json:"part_no"`
	Name           string   `json:"name"`
	CustomerPartNo string   `json:"customer_part_no"`
	Material       string   `json:"material"`
	Stations       Stations `json:"-"`
	Model          string   `json:"model"`
}

// MORecord is an issued manufacturing order. Catalog fields are snapshots
// taken at creation time and never change afterwards.
type MORecord struct {
	MOID           string    `json:"mo_id"`
	CreatedAt      time.Time `json:"created_at"`
	PartNo         string    `json:"part_no"`
	OrderNo        string    `json:"order_no"`
	Name           string    `json:"name"`
	CustomerPartNo string    `json:"customer_part_no"`
	Material       string    `json:"material"`
	Quantity       int       `json:"quantity"`
	Stations       Stations  `json:"-"`
	Model          string    `json:"model"`
}

// BatchItem is one requested line of a batch create.
type BatchItem struct {
	PartNo   string `json:"part_no"`
	OrderNo  string `json:"order_no"`
	Quantity int    `json:"quantity"`
}

// ProductInfo is the lookup view of a catalog entry with only defined stations.
type ProductInfo struct {
	PartNo         string        `json:"part_no"`
	Name           string        `json:"name"`
	CustomerPartNo string        `json:"customer_part_no"`
	Material       string        `json:"material"`
	Stations       []StationSpec `json:"stations"`
	Model          string        `json:"model"`
}

// Info converts a catalog entry into its lookup view.
func (c CatalogEntry) Info() ProductInfo {
	return ProductInfo{
		PartNo:         c.PartNo,
		Name:           c.Name,
		CustomerPartNo: c.CustomerPartNo,
		Material:       c.Material,
		Stations:       c.Stations.Defined(),
		Model:          c.Model,
	}
}

// RecordView is the JSON shape of an MO record including its stations.
type RecordView struct {
	MORecord
	Date     string        `json:"date"`
	Stations []StationSpec `json:"stations"`
}

// View converts a record into its JSON shape.
func (r MORecord) View() RecordView {
	return RecordView{
		MORecord: r,
		Date:     r.CreatedAt.Format("2006/01/02"),
		Stations: r.Stations.Defined(),
	}
}

type EmailLogEntry struct {
	ID        int    `json:"id"`
	To        string `json:"to_address"`
	Subject   string `json:"subject"`
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	SentAt    string `json:"sent_at"`
}

type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}
