package realtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/radar-bff/internal/domain"
)

const fieldSep = "|"

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownSource = errors.New("unknown source tag")
	ErrBadDateTime   = errors.New("unparsable date/time")
)

// NoTollPlaza: значение praca для форматов без пункта оплаты.
const NoTollPlaza = "N/A"

// layout: позиции полей одного формата. -1: поля в формате нет.
type layout struct {
	minFields int
	plate     int
	tollPlaza int
	highway   int
	km        int
	direction int
}

var (
	layoutNoPlaza = layout{minFields: 7, plate: 3, tollPlaza: -1, highway: 4, km: 5, direction: 6}
	layoutPlaza   = layout{minFields: 8, plate: 3, tollPlaza: 4, highway: 5, km: 6, direction: 7}
)

// Закрытый набор тегов: у каждого свой формат, неизвестный тег отбрасывается.
var layouts = map[string]layout{
	"RONDON":    layoutNoPlaza,
	"ENTREVIAS": layoutPlaza,
	"CART":      layoutPlaza,
	"EIXO":      layoutPlaza,
}

// KnownTags: теги, которые понимает декодер.
func KnownTags() []string {
	return []string{"CART", "EIXO", "ENTREVIAS", "RONDON"}
}

// Decode разбирает "TAG|data|hora|placa|..." в RadarRecord.
func Decode(raw string) (domain.RadarRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.RadarRecord{}, fmt.Errorf("%w: empty", ErrMalformed)
	}

	parts := strings.Split(strings.TrimSpace(raw), fieldSep)
	if len(parts) < 4 {
		return domain.RadarRecord{}, fmt.Errorf("%w: %d fields", ErrMalformed, len(parts))
	}

	tag := strings.ToUpper(strings.TrimSpace(parts[0]))
	l, ok := layouts[tag]
	if !ok {
		return domain.RadarRecord{}, fmt.Errorf("%w: %q", ErrUnknownSource, tag)
	}
	if len(parts) < l.minFields {
		return domain.RadarRecord{}, fmt.Errorf("%w: %s expects %d fields, got %d", ErrMalformed, tag, l.minFields, len(parts))
	}

	date, err := domain.ParseLocalDate(parts[1])
	if err != nil {
		return domain.RadarRecord{}, fmt.Errorf("%w: %v", ErrBadDateTime, err)
	}
	tm, err := domain.ParseLocalTime(parts[2])
	if err != nil {
		return domain.RadarRecord{}, fmt.Errorf("%w: %v", ErrBadDateTime, err)
	}

	field := func(i int) string { return strings.TrimSpace(parts[i]) }

	rec := domain.RadarRecord{
		Date:            &date,
		Time:            &tm,
		Plate:           field(l.plate),
		TollPlaza:       NoTollPlaza,
		Highway:         field(l.highway),
		KilometerMarker: field(l.km),
		Direction:       field(l.direction),
		SourceName:      tag,
	}
	if l.tollPlaza >= 0 {
		rec.TollPlaza = field(l.tollPlaza)
	}
	if rec.Plate == "" {
		return domain.RadarRecord{}, fmt.Errorf("%w: empty plate", ErrMalformed)
	}
	return rec, nil
}
