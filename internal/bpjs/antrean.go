package bpjs

import (
	"context"
	"net/http"
	"time"
)

// Antrean task codes mark queue milestones on the BPJS side.
const (
	TaskCheckIn      = 3
	TaskCalled       = 4
	TaskServiceStart = 5
	TaskServiceDone  = 6
	TaskCancelled    = 99
)

// Antrean wraps the BPJS outpatient queue reporting API.
type Antrean struct {
	client *Client
}

func NewAntrean(client *Client) *Antrean {
	return &Antrean{client: client}
}

type AddAntreanRequest struct {
	KodeBooking    string `json:"kodebooking"`
	JenisPasien    string `json:"jenispasien"`
	NomorKartu     string `json:"nomorkartu"`
	NIK            string `json:"nik"`
	KodePoli       string `json:"kodepoli"`
	NamaPoli       string `json:"namapoli"`
	TanggalPeriksa string `json:"tanggalperiksa"`
	NomorAntrean   string `json:"nomorantrean"`
	AngkaAntrean   int    `json:"angkaantrean"`
	EstimasiDilayani int64 `json:"estimasidilayani"`
}

// Add registers a new queue entry with BPJS.
func (a *Antrean) Add(ctx context.Context, req AddAntreanRequest) error {
	return a.client.Do(ctx, http.MethodPost, "/antrean/add", req, nil)
}

type updateTaskRequest struct {
	KodeBooking string `json:"kodebooking"`
	TaskID      int    `json:"taskid"`
	Waktu       int64  `json:"waktu"`
}

// UpdateTask reports a queue milestone. Waktu is epoch milliseconds per the
// API contract.
func (a *Antrean) UpdateTask(ctx context.Context, kodeBooking string, taskID int, at time.Time) error {
	return a.client.Do(ctx, http.MethodPost, "/antrean/updatewaktu", updateTaskRequest{
		KodeBooking: kodeBooking,
		TaskID:      taskID,
		Waktu:       at.UnixMilli(),
	}, nil)
}

type cancelRequest struct {
	KodeBooking string `json:"kodebooking"`
	Keterangan  string `json:"keterangan"`
}

// Cancel voids a queue entry on the BPJS side.
func (a *Antrean) Cancel(ctx context.Context, kodeBooking, reason string) error {
	return a.client.Do(ctx, http.MethodPost, "/antrean/batal", cancelRequest{
		KodeBooking: kodeBooking,
		Keterangan:  reason,
	}, nil)
}
