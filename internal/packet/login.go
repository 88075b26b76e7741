package packet

import (
	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/google/uuid"
)

type LoginDisconnect struct {
	Reason Chat
}

type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
	// ShouldAuthenticate tells the client whether to contact the session
	// server. Servers before 1.20.5 always expect it.
	ShouldAuthenticate bool
}

type Property struct {
	Name      string
	Value     string
	Signature *string
}

type LoginSuccess struct {
	UUID                uuid.UUID
	Username            string
	Properties          []Property
	StrictErrorHandling bool
}

// SetCompression enables compression for every following frame. It is sent
// in login, and by 1.8 servers in play as well.
type SetCompression struct {
	Threshold int32
}

type LoginPluginRequest struct {
	MessageID int32
	Channel   string
	Data      []byte
}

type LoginSignature struct {
	Timestamp int64
	PublicKey []byte
	Signature []byte
}

type LoginStart struct {
	Name string
	// Signature is only sent by 1.19 to 1.19.2 clients.
	Signature *LoginSignature
	// UUID is optional from 1.19.1 and mandatory from 1.20.2.
	UUID *uuid.UUID
}

type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
	// Salt and Signature replace the verify token for 1.19 clients that
	// signed the nonce with their chat key.
	Salt      int64
	Signature []byte
}

type LoginPluginResponse struct {
	MessageID  int32
	Successful bool
	Data       []byte
}

type LoginAcknowledged struct{}

var propertyField = field[Property]{
	read: func(b *protocol.Buffer) (Property, error) {
		var p Property
		var err error
		if p.Name, err = b.ReadString(); err != nil {
			return p, err
		}
		if p.Value, err = b.ReadString(); err != nil {
			return p, err
		}
		p.Signature, err = optionalField(stringField).read(b)
		return p, err
	},
	write: func(w *protocol.Writer, p Property) error {
		w.WriteString(p.Name)
		w.WriteString(p.Value)
		return optionalField(stringField).write(w, p.Signature)
	},
}

var loginSignatureField = field[LoginSignature]{
	read: func(b *protocol.Buffer) (LoginSignature, error) {
		var s LoginSignature
		var err error
		if s.Timestamp, err = b.ReadInt64(); err != nil {
			return s, err
		}
		if s.PublicKey, err = b.ReadVarBytes(); err != nil {
			return s, err
		}
		s.Signature, err = b.ReadVarBytes()
		return s, err
	},
	write: func(w *protocol.Writer, s LoginSignature) error {
		w.WriteInt64(s.Timestamp)
		w.WriteVarBytes(s.PublicKey)
		w.WriteVarBytes(s.Signature)
		return nil
	},
}

var (
	loginDisconnectLayout = Layout[LoginDisconnect]{
		scalar("reason", protocol.AllVersions, jsonChatField, func(p *LoginDisconnect) *Chat { return &p.Reason }),
	}

	encryptionRequestLayout = Layout[EncryptionRequest]{
		scalar("server_id", protocol.AllVersions, stringMaxField(20), func(p *EncryptionRequest) *string { return &p.ServerID }),
		scalar("public_key", protocol.AllVersions, prefixedBytesField, func(p *EncryptionRequest) *[]byte { return &p.PublicKey }),
		scalar("verify_token", protocol.AllVersions, prefixedBytesField, func(p *EncryptionRequest) *[]byte { return &p.VerifyToken }),
		scalar("should_authenticate", protocol.Since(protocol.V1_20_5), boolField, func(p *EncryptionRequest) *bool { return &p.ShouldAuthenticate }),
	}

	loginSuccessLayout = Layout[LoginSuccess]{
		scalar("uuid", protocol.Until(protocol.V20W12A), uuidStringField, func(p *LoginSuccess) *uuid.UUID { return &p.UUID }),
		scalar("uuid", protocol.Since(protocol.V20W12A), uuidField, func(p *LoginSuccess) *uuid.UUID { return &p.UUID }),
		scalar("username", protocol.AllVersions, stringMaxField(16), func(p *LoginSuccess) *string { return &p.Username }),
		scalar("properties", protocol.Since(protocol.V1_19), listField(propertyField, 3), func(p *LoginSuccess) *[]Property { return &p.Properties }),
		scalar("strict_error_handling", protocol.Between(protocol.V1_20_5, protocol.V1_21_2), boolField, func(p *LoginSuccess) *bool { return &p.StrictErrorHandling }),
	}

	setCompressionLayout = Layout[SetCompression]{
		scalar("threshold", protocol.AllVersions, varIntField, func(p *SetCompression) *int32 { return &p.Threshold }),
	}

	loginPluginRequestLayout = Layout[LoginPluginRequest]{
		scalar("message_id", protocol.AllVersions, varIntField, func(p *LoginPluginRequest) *int32 { return &p.MessageID }),
		scalar("channel", protocol.AllVersions, stringField, func(p *LoginPluginRequest) *string { return &p.Channel }),
		scalar("data", protocol.AllVersions, restField, func(p *LoginPluginRequest) *[]byte { return &p.Data }),
	}

	loginStartLayout = Layout[LoginStart]{
		scalar("name", protocol.AllVersions, stringMaxField(16), func(p *LoginStart) *string { return &p.Name }),
		scalar("signature", protocol.Between(protocol.V1_19, protocol.V1_19_3), optionalField(loginSignatureField), func(p *LoginStart) **LoginSignature { return &p.Signature }),
		scalar("uuid", protocol.Between(protocol.V1_19_1, protocol.V1_20_2), optionalField(uuidField), func(p *LoginStart) **uuid.UUID { return &p.UUID }),
		{
			Name:  "uuid",
			Range: protocol.Since(protocol.V1_20_2),
			Decode: func(b *protocol.Buffer, p *LoginStart) error {
				id, err := b.ReadUUID()
				p.UUID = &id
				return err
			},
			Encode: func(w *protocol.Writer, p *LoginStart) error {
				if p.UUID == nil {
					w.WriteUUID(protocol.OfflineUUID(p.Name))
					return nil
				}
				w.WriteUUID(*p.UUID)
				return nil
			},
		},
	}

	encryptionResponseLayout = Layout[EncryptionResponse]{
		scalar("shared_secret", protocol.AllVersions, prefixedBytesField, func(p *EncryptionResponse) *[]byte { return &p.SharedSecret }),
		scalar("verify_token", protocol.Until(protocol.V1_19), prefixedBytesField, func(p *EncryptionResponse) *[]byte { return &p.VerifyToken }),
		{
			Name:   "verify_token_or_salt",
			Range:  protocol.Between(protocol.V1_19, protocol.V1_19_3),
			Decode: decodeTokenOrSalt,
			Encode: encodeTokenOrSalt,
		},
		scalar("verify_token", protocol.Since(protocol.V1_19_3), prefixedBytesField, func(p *EncryptionResponse) *[]byte { return &p.VerifyToken }),
	}

	loginPluginResponseLayout = Layout[LoginPluginResponse]{
		scalar("message_id", protocol.AllVersions, varIntField, func(p *LoginPluginResponse) *int32 { return &p.MessageID }),
		scalar("successful", protocol.AllVersions, boolField, func(p *LoginPluginResponse) *bool { return &p.Successful }),
		scalar("data", protocol.AllVersions, restField, func(p *LoginPluginResponse) *[]byte { return &p.Data }),
	}

	loginAcknowledgedLayout = Layout[LoginAcknowledged]{}
)

func decodeTokenOrSalt(b *protocol.Buffer, p *EncryptionResponse) error {
	hasToken, err := b.ReadBool()
	if err != nil {
		return err
	}
	if hasToken {
		p.VerifyToken, err = b.ReadVarBytes()
		return err
	}
	if p.Salt, err = b.ReadInt64(); err != nil {
		return err
	}
	p.Signature, err = b.ReadVarBytes()
	return err
}

func encodeTokenOrSalt(w *protocol.Writer, p *EncryptionResponse) error {
	if p.Signature != nil {
		w.WriteBool(false)
		w.WriteInt64(p.Salt)
		w.WriteVarBytes(p.Signature)
		return nil
	}
	w.WriteBool(true)
	w.WriteVarBytes(p.VerifyToken)
	return nil
}
