package hl7

import (
	"fmt"
	"time"
)

// MSA acknowledgment codes.
const (
	AckAccept = "AA"
	AckError  = "AE"
	AckReject = "AR"
)

// BuildAck constructs an ACK (or NAK) for the given message, mirroring the
// sender and receiver identifiers swapped. The text field is only populated
// for non-AA codes.
func BuildAck(msg Message, code, text string, at time.Time) string {
	version := msg.Version()
	if version == "" {
		version = "2.5.1"
	}
	controlID := msg.ControlID()
	timestamp := at.UTC().Format("20060102150405")

	msh := fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||ACK|%s|P|%s",
		msg.ReceivingApp(), msg.ReceivingFacility(),
		msg.SendingApp(), msg.SendingFacility(),
		timestamp, ackControlID(controlID, timestamp), version)

	msa := fmt.Sprintf("MSA|%s|%s", code, controlID)
	if code != AckAccept && text != "" {
		msa += fieldSeparator + text
	}
	return msh + segmentSeparator + msa
}

func ackControlID(controlID, timestamp string) string {
	if controlID == "" {
		return "ACK" + timestamp
	}
	return "ACK" + controlID
}
