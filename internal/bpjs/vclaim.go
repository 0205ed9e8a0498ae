package bpjs

import (
	"context"
	"net/http"
)

// VClaim wraps the eligibility endpoints of the BPJS VClaim API.
type VClaim struct {
	client *Client
}

func NewVClaim(client *Client) *VClaim {
	return &VClaim{client: client}
}

type Peserta struct {
	NoKartu       string `json:"noKartu"`
	NIK           string `json:"nik"`
	Nama          string `json:"nama"`
	TglLahir      string `json:"tglLahir"`
	StatusPeserta struct {
		Kode       string `json:"kode"`
		Keterangan string `json:"keterangan"`
	} `json:"statusPeserta"`
	JenisPeserta struct {
		Kode       string `json:"kode"`
		Keterangan string `json:"keterangan"`
	} `json:"jenisPeserta"`
	HakKelas struct {
		Kode       string `json:"kode"`
		Keterangan string `json:"keterangan"`
	} `json:"hakKelas"`
}

type pesertaResponse struct {
	Peserta Peserta `json:"peserta"`
}

// PesertaByCard checks membership by BPJS card number on a service date
// (YYYY-MM-DD).
func (v *VClaim) PesertaByCard(ctx context.Context, cardNumber, serviceDate string) (Peserta, error) {
	var resp pesertaResponse
	err := v.client.Do(ctx, http.MethodGet,
		"/Peserta/nokartu/"+cardNumber+"/tglSEP/"+serviceDate, nil, &resp)
	if err != nil {
		return Peserta{}, err
	}
	return resp.Peserta, nil
}

// PesertaByNIK checks membership by national identity number.
func (v *VClaim) PesertaByNIK(ctx context.Context, nik, serviceDate string) (Peserta, error) {
	var resp pesertaResponse
	err := v.client.Do(ctx, http.MethodGet,
		"/Peserta/nik/"+nik+"/tglSEP/"+serviceDate, nil, &resp)
	if err != nil {
		return Peserta{}, err
	}
	return resp.Peserta, nil
}

type Rujukan struct {
	NoKunjungan string `json:"noKunjungan"`
	TglKunjungan string `json:"tglKunjungan"`
	Diagnosa    struct {
		Kode string `json:"kode"`
		Nama string `json:"nama"`
	} `json:"diagnosa"`
	PoliRujukan struct {
		Kode string `json:"kode"`
		Nama string `json:"nama"`
	} `json:"poliRujukan"`
}

type rujukanResponse struct {
	Rujukan Rujukan `json:"rujukan"`
}

// RujukanByCard fetches the active referral for a card number.
func (v *VClaim) RujukanByCard(ctx context.Context, cardNumber string) (Rujukan, error) {
	var resp rujukanResponse
	err := v.client.Do(ctx, http.MethodGet,
		"/Rujukan/Peserta/"+cardNumber, nil, &resp)
	if err != nil {
		return Rujukan{}, err
	}
	return resp.Rujukan, nil
}
