package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/xela07ax/radar-bff/internal/domain"
)

// Paging: page/size с дефолтом и потолком из конфига api.*
type Paging struct {
	DefaultSize int
	MaxSize     int
}

func (p Paging) parse(r *http.Request) (page, size int, err error) {
	q := r.URL.Query()
	page, err = intParam(q.Get("page"), 0)
	if err != nil || page < 0 {
		return 0, 0, fmt.Errorf("invalid page %q", q.Get("page"))
	}
	size, err = intParam(q.Get("size"), p.DefaultSize)
	if err != nil || size <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", q.Get("size"))
	}
	if p.MaxSize > 0 && size > p.MaxSize {
		size = p.MaxSize
	}
	return page, size, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// parseFilters читает общие фильтры. concessionaria повторяемый
// (?concessionaria=cart&concessionaria=eixo) или через запятую.
func parseFilters(r *http.Request) (domain.FilterQuery, error) {
	v := r.URL.Query()
	q := domain.FilterQuery{
		Plate:           strings.TrimSpace(v.Get("placa")),
		TollPlaza:       strings.TrimSpace(v.Get("praca")),
		Highway:         strings.TrimSpace(v.Get("rodovia")),
		KilometerMarker: strings.TrimSpace(v.Get("km")),
		Direction:       strings.TrimSpace(v.Get("sentido")),
	}
	for _, raw := range v["concessionaria"] {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				q.Sources = append(q.Sources, name)
			}
		}
	}

	if s := v.Get("data"); s != "" {
		d, err := domain.ParseLocalDate(s)
		if err != nil {
			return q, err
		}
		q.Date = &d
	}
	if s := v.Get("horaInicial"); s != "" {
		t, err := domain.ParseLocalTime(s)
		if err != nil {
			return q, err
		}
		q.TimeFrom = &t
	}
	if s := v.Get("horaFinal"); s != "" {
		t, err := domain.ParseLocalTime(s)
		if err != nil {
			return q, err
		}
		q.TimeTo = &t
	}
	return q, nil
}
