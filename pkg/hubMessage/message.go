// Package hubMessage decodes and encodes the hub protocol Message envelope.
//
// Only the envelope and the MessageData header (type, fid, timestamp, network) are
// modelled. Everything else is carried as raw bytes so a decoded message can be
// submitted back to a hub byte-for-byte.
package hubMessage

import (
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// FarcasterEpoch is the zero point of MessageData timestamps
var FarcasterEpoch = time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)

// Message field numbers
const (
	fieldData            protowire.Number = 1
	fieldHash            protowire.Number = 2
	fieldHashScheme      protowire.Number = 3
	fieldSignature       protowire.Number = 4
	fieldSignatureScheme protowire.Number = 5
	fieldSigner          protowire.Number = 6
	fieldDataBytes       protowire.Number = 7
)

// MessageData header field numbers
const (
	fieldDataType      protowire.Number = 1
	fieldDataFid       protowire.Number = 2
	fieldDataTimestamp protowire.Number = 3
	fieldDataNetwork   protowire.Number = 4
)

type MessageType int32

const (
	MessageTypeNone               MessageType = 0
	MessageTypeCastAdd            MessageType = 1
	MessageTypeCastRemove         MessageType = 2
	MessageTypeReactionAdd        MessageType = 3
	MessageTypeReactionRemove     MessageType = 4
	MessageTypeLinkAdd            MessageType = 5
	MessageTypeLinkRemove         MessageType = 6
	MessageTypeVerificationAdd    MessageType = 7
	MessageTypeVerificationRemove MessageType = 8
	MessageTypeSignerAdd          MessageType = 9
	MessageTypeSignerRemove       MessageType = 10
	MessageTypeUserDataAdd        MessageType = 11
	MessageTypeUsernameProof      MessageType = 12
)

var messageTypeNames = map[MessageType]string{
	MessageTypeNone:               "MESSAGE_TYPE_NONE",
	MessageTypeCastAdd:            "MESSAGE_TYPE_CAST_ADD",
	MessageTypeCastRemove:         "MESSAGE_TYPE_CAST_REMOVE",
	MessageTypeReactionAdd:        "MESSAGE_TYPE_REACTION_ADD",
	MessageTypeReactionRemove:     "MESSAGE_TYPE_REACTION_REMOVE",
	MessageTypeLinkAdd:            "MESSAGE_TYPE_LINK_ADD",
	MessageTypeLinkRemove:         "MESSAGE_TYPE_LINK_REMOVE",
	MessageTypeVerificationAdd:    "MESSAGE_TYPE_VERIFICATION_ADD_ETH_ADDRESS",
	MessageTypeVerificationRemove: "MESSAGE_TYPE_VERIFICATION_REMOVE",
	MessageTypeSignerAdd:          "MESSAGE_TYPE_SIGNER_ADD",
	MessageTypeSignerRemove:       "MESSAGE_TYPE_SIGNER_REMOVE",
	MessageTypeUserDataAdd:        "MESSAGE_TYPE_USER_DATA_ADD",
	MessageTypeUsernameProof:      "MESSAGE_TYPE_USERNAME_PROOF",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MESSAGE_TYPE_%d", int32(t))
}

type HashScheme int32

const (
	HashSchemeNone   HashScheme = 0
	HashSchemeBlake3 HashScheme = 1
)

type SignatureScheme int32

const (
	SignatureSchemeNone    SignatureScheme = 0
	SignatureSchemeEd25519 SignatureScheme = 1
	SignatureSchemeEIP712  SignatureScheme = 2
)

type FarcasterNetwork int32

const (
	FarcasterNetworkNone    FarcasterNetwork = 0
	FarcasterNetworkMainnet FarcasterNetwork = 1
	FarcasterNetworkTestnet FarcasterNetwork = 2
	FarcasterNetworkDevnet  FarcasterNetwork = 3
)

// MessageData is the signed payload header. Body keeps the remaining (oneof body)
// fields exactly as they appeared on the wire.
type MessageData struct {
	Type      MessageType
	Fid       uint64
	Timestamp uint32
	Network   FarcasterNetwork
	Body      []byte
}

// Time converts the Farcaster timestamp into wall clock time
func (d *MessageData) Time() time.Time {
	return FarcasterEpoch.Add(time.Duration(d.Timestamp) * time.Second)
}

// Message is the hub protocol envelope
type Message struct {
	Data            *MessageData
	Hash            []byte
	HashScheme      HashScheme
	Signature       []byte
	SignatureScheme SignatureScheme
	Signer          []byte
	DataBytes       []byte

	// dataRaw is the encoded MessageData as received, raw the whole message
	dataRaw []byte
	raw     []byte
}

// DecodeBase64 decodes a base64 (standard encoding) message as returned by the
// approval API
func DecodeBase64(s string) (*Message, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 message: %w", err)
	}
	return Decode(b)
}

// Decode parses the wire form of a Message
func Decode(b []byte) (*Message, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("cannot decode empty message")
	}

	m := &Message{raw: append([]byte(nil), b...)}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid message tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid message data: %w", protowire.ParseError(n))
			}
			data, err := decodeMessageData(v)
			if err != nil {
				return nil, err
			}
			m.Data = data
			m.dataRaw = append([]byte(nil), v...)
			b = b[n:]
		case (num == fieldHash || num == fieldSignature || num == fieldSigner || num == fieldDataBytes) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid bytes field %d: %w", num, protowire.ParseError(n))
			}
			v = append([]byte(nil), v...)
			switch num {
			case fieldHash:
				m.Hash = v
			case fieldSignature:
				m.Signature = v
			case fieldSigner:
				m.Signer = v
			case fieldDataBytes:
				m.DataBytes = v
			}
			b = b[n:]
		case (num == fieldHashScheme || num == fieldSignatureScheme) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid enum field %d: %w", num, protowire.ParseError(n))
			}
			if num == fieldHashScheme {
				m.HashScheme = HashScheme(int32(v))
			} else {
				m.SignatureScheme = SignatureScheme(int32(v))
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	// Newer messages sign data_bytes and may omit data entirely
	if m.Data == nil && len(m.DataBytes) > 0 {
		data, err := decodeMessageData(m.DataBytes)
		if err != nil {
			return nil, fmt.Errorf("invalid data_bytes: %w", err)
		}
		m.Data = data
	}

	return m, nil
}

func decodeMessageData(b []byte) (*MessageData, error) {
	d := &MessageData{}
	var body []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid message data tag: %w", protowire.ParseError(n))
		}
		field := b
		b = b[n:]

		if typ == protowire.VarintType && num >= fieldDataType && num <= fieldDataNetwork {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid message data field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldDataType:
				d.Type = MessageType(int32(v))
			case fieldDataFid:
				d.Fid = v
			case fieldDataTimestamp:
				d.Timestamp = uint32(v)
			case fieldDataNetwork:
				d.Network = FarcasterNetwork(int32(v))
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("invalid message data field %d: %w", num, protowire.ParseError(n))
		}
		tagLen := len(field) - len(b)
		body = append(body, field[:tagLen+n]...)
		b = b[n:]
	}
	d.Body = body
	return d, nil
}

// Bytes returns the wire form. A decoded message returns exactly the bytes it was
// decoded from; a constructed message is encoded from its fields.
func (m *Message) Bytes() []byte {
	if len(m.raw) > 0 {
		return append([]byte(nil), m.raw...)
	}
	return m.Marshal()
}

// Marshal encodes the message from its fields
func (m *Message) Marshal() []byte {
	var b []byte
	if m.Data != nil {
		data := m.dataRaw
		if len(data) == 0 {
			data = m.Data.Marshal()
		}
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, data)
	}
	b = appendBytesField(b, fieldHash, m.Hash)
	b = appendVarintField(b, fieldHashScheme, uint64(m.HashScheme))
	b = appendBytesField(b, fieldSignature, m.Signature)
	b = appendVarintField(b, fieldSignatureScheme, uint64(m.SignatureScheme))
	b = appendBytesField(b, fieldSigner, m.Signer)
	if m.DataBytes != nil {
		b = protowire.AppendTag(b, fieldDataBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, m.DataBytes)
	}
	return b
}

// Marshal encodes the header fields followed by the raw body
func (d *MessageData) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, fieldDataType, uint64(d.Type))
	b = appendVarintField(b, fieldDataFid, d.Fid)
	b = appendVarintField(b, fieldDataTimestamp, uint64(d.Timestamp))
	b = appendVarintField(b, fieldDataNetwork, uint64(d.Network))
	return append(b, d.Body...)
}

// Base64 returns the standard base64 form of the wire bytes
func (m *Message) Base64() string {
	return base64.StdEncoding.EncodeToString(m.Bytes())
}

// Fid returns the fid from the data header, or zero when absent
func (m *Message) Fid() uint64 {
	if m.Data == nil {
		return 0
	}
	return m.Data.Fid
}

// proto3 omits zero scalars
func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
