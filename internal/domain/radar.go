package domain

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// LocalDate: дата без времени и зоны (формат бэкендов: yyyy-MM-dd).
type LocalDate struct {
	time.Time
}

// LocalTime: время суток без даты (формат бэкендов: HH:mm:ss).
type LocalTime struct {
	time.Time
}

func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return LocalDate{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return LocalDate{t}, nil
}

// ParseLocalTime принимает HH:mm:ss, HH:mm и HH:mm:ss.fff
func ParseLocalTime(s string) (LocalTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeLayout, "15:04", "15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalTime{t}, nil
		}
	}
	return LocalTime{}, fmt.Errorf("invalid time %q", s)
}

func (d LocalDate) String() string { return d.Format(DateLayout) }
func (t LocalTime) String() string { return t.Format(TimeLayout) }

func (d LocalDate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *LocalDate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	v, err := ParseLocalDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *LocalTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	v, err := ParseLocalTime(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RadarRecord: одно наблюдение радара/пункта оплаты.
// JSON-имена совпадают с контрактом бэкендов концессионеров.
type RadarRecord struct {
	ID              *int64     `json:"id"` // локальный для источника, может отсутствовать
	Date            *LocalDate `json:"data"`
	Time            *LocalTime `json:"hora"`
	Plate           string     `json:"placa"`
	TollPlaza       string     `json:"praca"`
	Highway         string     `json:"rodovia"`
	KilometerMarker string     `json:"km"`
	Direction       string     `json:"sentido"`
	SourceName      string     `json:"concessionaria"`
}

// SortNewestFirst сортирует по (data desc, hora desc), записи без даты/времени в конце.
// Сортировка стабильная: порядок равных записей сохраняется.
func SortNewestFirst(recs []RadarRecord) {
	slices.SortStableFunc(recs, CompareNewestFirst)
}

func CompareNewestFirst(a, b RadarRecord) int {
	if c := compareDesc(a.Date.orZero(), b.Date.orZero(), a.Date == nil, b.Date == nil); c != 0 {
		return c
	}
	return compareDesc(a.Time.orZero(), b.Time.orZero(), a.Time == nil, b.Time == nil)
}

func compareDesc(a, b time.Time, aNil, bNil bool) int {
	switch {
	case aNil && bNil:
		return 0
	case aNil:
		return 1
	case bNil:
		return -1
	}
	return b.Compare(a)
}

func (d *LocalDate) orZero() time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

func (t *LocalTime) orZero() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

// FilterQuery: неизменяемые параметры запроса для fan-out.
// Пустой Sources означает "все зарегистрированные источники".
type FilterQuery struct {
	Sources         []string
	Plate           string
	TollPlaza       string
	Highway         string
	KilometerMarker string
	Direction       string
	Date            *LocalDate
	TimeFrom        *LocalTime
	TimeTo          *LocalTime
	PageNumber      int
	PageSize        int
}

// WithPage возвращает копию запроса с другим окном пагинации.
func (q FilterQuery) WithPage(number, size int) FilterQuery {
	q.PageNumber = number
	q.PageSize = size
	return q
}

type PageMetadata struct {
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

type PageResult struct {
	Content []RadarRecord `json:"content"`
	Page    PageMetadata  `json:"page"`
}

// EmptyPage: fallback для недоступного источника.
func EmptyPage(number, size int) PageResult {
	return PageResult{
		Content: []RadarRecord{},
		Page:    PageMetadata{Number: number, Size: size},
	}
}

// TotalPages = ceil(total/size), 0 при size <= 0
func TotalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// FilterOptions: значения для выпадающих списков фронтенда.
type FilterOptions struct {
	Highways         []string `json:"rodovias"`
	TollPlazas       []string `json:"pracas"`
	KilometerMarkers []string `json:"kms"`
	Directions       []string `json:"sentidos"`
}

func EmptyFilterOptions() FilterOptions {
	return FilterOptions{
		Highways:         []string{},
		TollPlazas:       []string{},
		KilometerMarkers: []string{},
		Directions:       []string{},
	}
}

// SourceEndpoint: запись реестра источников.
type SourceEndpoint struct {
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	Resource string `json:"resource"`
}
