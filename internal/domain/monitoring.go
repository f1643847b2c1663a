package domain

import "time"

// MonitoredPlate: номер под наблюдением в сервисе мониторинга.
type MonitoredPlate struct {
	ID          *int64    `json:"id,omitempty"`
	Plate       string    `json:"placa"`
	MakeModel   string    `json:"marcaModelo,omitempty"`
	Color       string    `json:"cor,omitempty"`
	Reason      string    `json:"motivo,omitempty"`
	Note        string    `json:"observacao,omitempty"`
	Stakeholder string    `json:"interessado,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// PassageAlert: подтвержденный проезд номера из списка наблюдения.
type PassageAlert struct {
	ID              *int64          `json:"id,omitempty"`
	SourceName      string          `json:"concessionaria"`
	Date            *LocalDate      `json:"data"`
	Time            *LocalTime      `json:"hora"`
	Plate           string          `json:"placa"`
	MakeModel       string          `json:"marcaModelo,omitempty"`
	Color           string          `json:"cor,omitempty"`
	Reason          string          `json:"motivo,omitempty"`
	Note            string          `json:"observacao,omitempty"`
	Stakeholder     string          `json:"interessado,omitempty"`
	TollPlaza       string          `json:"praca"`
	Highway         string          `json:"rodovia"`
	KilometerMarker string          `json:"km"`
	Direction       string          `json:"sentido"`
	AlertedAt       *time.Time      `json:"timestampAlerta,omitempty"`
	MonitoredPlate  *MonitoredPlate `json:"placaMonitorada,omitempty"`
}

// Page: обобщенная страница Spring Data, которую отдает сервис мониторинга.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// NotificationMessage: полезная нагрузка пользовательских уведомлений.
type NotificationMessage struct {
	Message string `json:"mensagem"`
}
