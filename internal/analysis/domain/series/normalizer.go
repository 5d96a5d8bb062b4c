package series

import (
	"fmt"
	"strings"
	"time"
)

// Table is raw tabular input: a header row and data rows of text cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of the named column, or -1.
func (t Table) Index(name string) int {
	name = cleanHeader(name)
	if name == "" {
		return -1
	}
	for i, col := range t.Header {
		if cleanHeader(col) == name {
			return i
		}
	}
	return -1
}

func cleanHeader(value string) string {
	return strings.TrimSpace(strings.TrimPrefix(value, "\ufeff"))
}

// Columns maps table headers to reading fields.
// Timestamp holds either a combined date+time or, when Time is set, the date.
type Columns struct {
	Entity    string `yaml:"entity" json:"entity"`
	Timestamp string `yaml:"timestamp" json:"timestamp"`
	Time      string `yaml:"time" json:"time,omitempty"`
	Value     string `yaml:"value" json:"value"`
}

// Validate checks that the mandatory columns are named.
func (c Columns) Validate() error {
	if strings.TrimSpace(c.Entity) == "" || strings.TrimSpace(c.Timestamp) == "" || strings.TrimSpace(c.Value) == "" {
		return ErrInvalidColumns
	}
	return nil
}

// Discards counts rows dropped during normalization, by reason.
type Discards struct {
	Entity    int `json:"entity"`
	Timestamp int `json:"timestamp"`
	Value     int `json:"value"`
}

// Total returns the number of dropped rows.
func (d Discards) Total() int { return d.Entity + d.Timestamp + d.Value }

// Result is the output of normalizing one table.
type Result struct {
	// Entities lists entity ids in order of first appearance.
	Entities []string
	Series   map[string]*Series
	Rows     int
	Discards Discards
}

// Get returns the series for an entity; unknown ids yield an empty series.
func (r Result) Get(entityID string) *Series {
	if s, ok := r.Series[entityID]; ok {
		return s
	}
	return Empty(entityID)
}

// Normalizer turns raw tables into per-entity series.
type Normalizer struct {
	columns  Columns
	location *time.Location
}

// Option configures the normalizer.
type Option func(*Normalizer)

// WithLocation sets the wall-clock location used for naive timestamps.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.location = loc
		}
	}
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(columns Columns, opts ...Option) (*Normalizer, error) {
	if err := columns.Validate(); err != nil {
		return nil, err
	}
	n := &Normalizer{columns: columns, location: time.UTC}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Columns returns the column mapping.
func (n *Normalizer) Columns() Columns { return n.columns }

type columnIndex struct {
	entity, timestamp, clock, value int
}

func (n *Normalizer) resolve(table Table) (columnIndex, error) {
	if len(table.Header) == 0 {
		return columnIndex{}, ErrEmptyTable
	}
	idx := columnIndex{
		entity:    table.Index(n.columns.Entity),
		timestamp: table.Index(n.columns.Timestamp),
		clock:     -1,
		value:     table.Index(n.columns.Value),
	}
	if idx.entity < 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, n.columns.Entity)
	}
	if idx.timestamp < 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, n.columns.Timestamp)
	}
	if idx.value < 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, n.columns.Value)
	}
	if n.columns.Time != "" {
		idx.clock = table.Index(n.columns.Time)
		if idx.clock < 0 {
			return idx, fmt.Errorf("%w: %s", ErrMissingColumn, n.columns.Time)
		}
	}
	return idx, nil
}

// Normalize builds one Series per distinct entity. The input is not modified.
func (n *Normalizer) Normalize(table Table) (Result, error) {
	return n.normalize(table, nil)
}

// Select builds the Series of a single entity, matched exactly on the
// identifier cell. Unknown identifiers yield an empty Series.
func (n *Normalizer) Select(table Table, entityID string) (*Series, Discards, error) {
	result, err := n.normalize(table, &entityID)
	if err != nil {
		return nil, Discards{}, err
	}
	return result.Get(entityID), result.Discards, nil
}

func (n *Normalizer) normalize(table Table, only *string) (Result, error) {
	idx, err := n.resolve(table)
	if err != nil {
		return Result{}, err
	}

	result := Result{Series: make(map[string]*Series)}
	points := make(map[string][]Point)
	for _, row := range table.Rows {
		entityID := cell(row, idx.entity)
		if only != nil && entityID != *only {
			continue
		}
		result.Rows++
		if entityID == "" {
			result.Discards.Entity++
			continue
		}
		ts, err := n.parseTime(row, idx)
		if err != nil {
			result.Discards.Timestamp++
			continue
		}
		value, err := ParseValue(cell(row, idx.value))
		if err != nil {
			result.Discards.Value++
			continue
		}
		if _, seen := points[entityID]; !seen {
			result.Entities = append(result.Entities, entityID)
		}
		points[entityID] = append(points[entityID], Point{Timestamp: ts, Value: value})
	}

	for _, entityID := range result.Entities {
		result.Series[entityID] = FromPoints(entityID, points[entityID])
	}
	return result, nil
}

func (n *Normalizer) parseTime(row []string, idx columnIndex) (time.Time, error) {
	if idx.clock >= 0 {
		return ParseDateTime(cell(row, idx.timestamp), cell(row, idx.clock), n.location)
	}
	return ParseTimestamp(cell(row, idx.timestamp), n.location)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
