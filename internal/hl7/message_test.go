package hl7

import (
	"strings"
	"testing"
	"time"
)

const sampleORU = "MSH|^~\\&|LAB|RSUD|SIMRS|RSUD|20250115083000||ORU^R01|MSG00042|P|2.5.1\r" +
	"PID|1||P-001^^^RSUD||SANTOSO^BUDI||19800101|M\r" +
	"PV1|1|I|CRD^201^A\r" +
	"ORC|RE|ORD-9||||||||||D-001^RAHMA^SITI\r" +
	"OBR|1|ORD-9||K^Kalium|||20250115080000|||||||||D-001^RAHMA^SITI\r" +
	"OBX|1|NM|K^Kalium||6.8|mmol/L^mmol/L|3.5-5.1|HH|||F\r" +
	"OBX|2|NM|NA^Natrium||140|mmol/L^mmol/L|135-145|N|||F"

func TestParseHeaderFields(t *testing.T) {
	msg, err := Parse(sampleORU)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := msg.MessageType(); got != "ORU^R01" {
		t.Fatalf("message type=%q", got)
	}
	if got := msg.ControlID(); got != "MSG00042" {
		t.Fatalf("control id=%q", got)
	}
	if got := msg.SendingApp(); got != "LAB" {
		t.Fatalf("sending app=%q", got)
	}
	if got := msg.SendingFacility(); got != "RSUD" {
		t.Fatalf("sending facility=%q", got)
	}
	if got := msg.ReceivingApp(); got != "SIMRS" {
		t.Fatalf("receiving app=%q", got)
	}
	if got := msg.Version(); got != "2.5.1" {
		t.Fatalf("version=%q", got)
	}
}

func TestParseSegments(t *testing.T) {
	msg, err := Parse(sampleORU)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	pid, ok := msg.Segment("PID")
	if !ok {
		t.Fatal("missing PID")
	}
	if got := Component(pid.Field(3), 1); got != "P-001" {
		t.Fatalf("patient id=%q", got)
	}

	obx := msg.AllSegments("OBX")
	if len(obx) != 2 {
		t.Fatalf("obx count=%d, want 2", len(obx))
	}
	if got := obx[0].Field(8); got != "HH" {
		t.Fatalf("abnormal flag=%q", got)
	}
	if got := obx[0].Field(5); got != "6.8" {
		t.Fatalf("value=%q", got)
	}
	if got := Component(obx[1].Field(3), 2); got != "Natrium" {
		t.Fatalf("test name=%q", got)
	}
}

func TestParseToleratesNewlines(t *testing.T) {
	msg, err := Parse(strings.ReplaceAll(sampleORU, "\r", "\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(msg.Segments) != 7 {
		t.Fatalf("segments=%d, want 7", len(msg.Segments))
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(""); err != ErrEmptyMessage {
		t.Fatalf("err=%v, want ErrEmptyMessage", err)
	}
	if _, err := Parse("PID|1||P-001"); err != ErrNoHeader {
		t.Fatalf("err=%v, want ErrNoHeader", err)
	}
}

func TestBuildAckMirrorsIdentifiers(t *testing.T) {
	msg, err := Parse(sampleORU)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	at := time.Date(2025, 1, 15, 8, 31, 0, 0, time.UTC)
	ack := BuildAck(msg, AckAccept, "", at)

	parsed, err := Parse(ack)
	if err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	if got := parsed.SendingApp(); got != "SIMRS" {
		t.Fatalf("ack sending app=%q, want receiver of original", got)
	}
	if got := parsed.ReceivingApp(); got != "LAB" {
		t.Fatalf("ack receiving app=%q, want sender of original", got)
	}
	if got := parsed.MessageType(); got != "ACK" {
		t.Fatalf("ack type=%q", got)
	}

	msa, ok := parsed.Segment("MSA")
	if !ok {
		t.Fatal("missing MSA")
	}
	if got := msa.Field(1); got != "AA" {
		t.Fatalf("msa code=%q", got)
	}
	if got := msa.Field(2); got != "MSG00042" {
		t.Fatalf("msa control id=%q", got)
	}
}

func TestBuildNakCarriesText(t *testing.T) {
	msg, err := Parse(sampleORU)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	nak := BuildAck(msg, AckError, "unsupported message type", time.Now())
	parsed, err := Parse(nak)
	if err != nil {
		t.Fatalf("parse nak: %v", err)
	}
	msa, _ := parsed.Segment("MSA")
	if got := msa.Field(1); got != "AE" {
		t.Fatalf("msa code=%q", got)
	}
	if got := msa.Field(3); got != "unsupported message type" {
		t.Fatalf("msa text=%q", got)
	}
}
