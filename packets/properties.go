// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/flitmq/packets/codec"
)

// Property identifier constants for the MQTT 5.0 properties block.
const (
	PayloadFormatProp          byte = 1
	MessageExpiryProp          byte = 2
	ContentTypeProp            byte = 3
	ResponseTopicProp          byte = 8
	CorrelationDataProp        byte = 9
	SubscriptionIdentifierProp byte = 11
	SessionExpiryIntervalProp  byte = 17
	AssignedClientIDProp       byte = 18
	ServerKeepAliveProp        byte = 19
	AuthMethodProp             byte = 21
	AuthDataProp               byte = 22
	RequestProblemInfoProp     byte = 23
	WillDelayIntervalProp      byte = 24
	RequestResponseInfoProp    byte = 25
	ResponseInfoProp           byte = 26
	ServerReferenceProp        byte = 28
	ReasonStringProp           byte = 31
	ReceiveMaximumProp         byte = 33
	TopicAliasMaximumProp      byte = 34
	TopicAliasProp             byte = 35
	MaximumQoSProp             byte = 36
	RetainAvailableProp        byte = 37
	UserProp                   byte = 38
	MaximumPacketSizeProp      byte = 39
	WildcardSubAvailableProp   byte = 40
	SubIDAvailableProp         byte = 41
	SharedSubAvailableProp     byte = 42
)

// encodePropArea prepends the VBI length to an encoded properties block.
// A nil block encodes as a single zero-length byte.
func encodePropArea(props []byte) []byte {
	return append(codec.EncodeVBI(len(props)), props...)
}

// readPropArea consumes the VBI-prefixed properties block from r and
// returns a reader spanning exactly its content.
func readPropArea(r io.Reader) (*bytes.Reader, error) {
	length, err := codec.DecodeVBI(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func encodeUserProps(ret []byte, user []User) []byte {
	for _, u := range user {
		ret = append(ret, UserProp)
		ret = append(ret, codec.EncodeString(u.Key)...)
		ret = append(ret, codec.EncodeString(u.Value)...)
	}
	return ret
}

func decodeUserProp(r io.Reader) (User, error) {
	k, err := codec.DecodeString(r)
	if err != nil {
		return User{}, err
	}
	v, err := codec.DecodeString(r)
	if err != nil {
		return User{}, err
	}
	return User{Key: k, Value: v}, nil
}

// BasicProperties is the properties block shared by acknowledgement
// packets: an optional human-readable reason plus user properties.
type BasicProperties struct {
	ReasonString string
	User         []User
}

func (p *BasicProperties) Encode() []byte {
	var ret []byte
	if p.ReasonString != "" {
		ret = append(ret, ReasonStringProp)
		ret = append(ret, codec.EncodeString(p.ReasonString)...)
	}
	return encodeUserProps(ret, p.User)
}

func (p *BasicProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case ReasonStringProp:
			if p.ReasonString, err = codec.DecodeString(r); err != nil {
				return err
			}
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}

// ConnectProperties is the CONNECT properties block.
type ConnectProperties struct {
	SessionExpiryInterval *uint32
	ReceiveMaximum        *uint16
	MaximumPacketSize     *uint32
	TopicAliasMaximum     *uint16
	RequestResponseInfo   *byte
	RequestProblemInfo    *byte
	AuthMethod            string
	AuthData              []byte
	User                  []User
}

func (p *ConnectProperties) Encode() []byte {
	var ret []byte
	if p.SessionExpiryInterval != nil {
		ret = append(ret, SessionExpiryIntervalProp)
		ret = append(ret, codec.EncodeUint32(*p.SessionExpiryInterval)...)
	}
	if p.ReceiveMaximum != nil {
		ret = append(ret, ReceiveMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.ReceiveMaximum)...)
	}
	if p.MaximumPacketSize != nil {
		ret = append(ret, MaximumPacketSizeProp)
		ret = append(ret, codec.EncodeUint32(*p.MaximumPacketSize)...)
	}
	if p.TopicAliasMaximum != nil {
		ret = append(ret, TopicAliasMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.TopicAliasMaximum)...)
	}
	if p.RequestResponseInfo != nil {
		ret = append(ret, RequestResponseInfoProp, *p.RequestResponseInfo)
	}
	if p.RequestProblemInfo != nil {
		ret = append(ret, RequestProblemInfoProp, *p.RequestProblemInfo)
	}
	if p.AuthMethod != "" {
		ret = append(ret, AuthMethodProp)
		ret = append(ret, codec.EncodeString(p.AuthMethod)...)
	}
	if p.AuthData != nil {
		ret = append(ret, AuthDataProp)
		ret = append(ret, codec.EncodeBytes(p.AuthData)...)
	}
	return encodeUserProps(ret, p.User)
}

func (p *ConnectProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case SessionExpiryIntervalProp:
			se, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.SessionExpiryInterval = &se
		case ReceiveMaximumProp:
			rm, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.ReceiveMaximum = &rm
		case MaximumPacketSizeProp:
			mp, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MaximumPacketSize = &mp
		case TopicAliasMaximumProp:
			ta, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.TopicAliasMaximum = &ta
		case RequestResponseInfoProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RequestResponseInfo = &b
		case RequestProblemInfoProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RequestProblemInfo = &b
		case AuthMethodProp:
			if p.AuthMethod, err = codec.DecodeString(r); err != nil {
				return err
			}
		case AuthDataProp:
			if p.AuthData, err = codec.DecodeBytes(r); err != nil {
				return err
			}
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}

// WillProperties is the will properties block inside a v5 CONNECT payload.
type WillProperties struct {
	WillDelayInterval *uint32
	PayloadFormat     *byte
	MessageExpiry     *uint32
	ContentType       string
	ResponseTopic     string
	CorrelationData   []byte
	User              []User
}

func (p *WillProperties) Encode() []byte {
	var ret []byte
	if p.WillDelayInterval != nil {
		ret = append(ret, WillDelayIntervalProp)
		ret = append(ret, codec.EncodeUint32(*p.WillDelayInterval)...)
	}
	if p.PayloadFormat != nil {
		ret = append(ret, PayloadFormatProp, *p.PayloadFormat)
	}
	if p.MessageExpiry != nil {
		ret = append(ret, MessageExpiryProp)
		ret = append(ret, codec.EncodeUint32(*p.MessageExpiry)...)
	}
	if p.ContentType != "" {
		ret = append(ret, ContentTypeProp)
		ret = append(ret, codec.EncodeString(p.ContentType)...)
	}
	if p.ResponseTopic != "" {
		ret = append(ret, ResponseTopicProp)
		ret = append(ret, codec.EncodeString(p.ResponseTopic)...)
	}
	if p.CorrelationData != nil {
		ret = append(ret, CorrelationDataProp)
		ret = append(ret, codec.EncodeBytes(p.CorrelationData)...)
	}
	return encodeUserProps(ret, p.User)
}

func (p *WillProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case WillDelayIntervalProp:
			wd, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.WillDelayInterval = &wd
		case PayloadFormatProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.PayloadFormat = &b
		case MessageExpiryProp:
			me, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MessageExpiry = &me
		case ContentTypeProp:
			if p.ContentType, err = codec.DecodeString(r); err != nil {
				return err
			}
		case ResponseTopicProp:
			if p.ResponseTopic, err = codec.DecodeString(r); err != nil {
				return err
			}
		case CorrelationDataProp:
			if p.CorrelationData, err = codec.DecodeBytes(r); err != nil {
				return err
			}
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}

// ConnAckProperties is the CONNACK properties block.
type ConnAckProperties struct {
	SessionExpiryInterval *uint32
	ReceiveMaximum        *uint16
	MaximumQoS            *byte
	RetainAvailable       *byte
	MaximumPacketSize     *uint32
	AssignedClientID      string
	TopicAliasMaximum     *uint16
	ReasonString          string
	WildcardSubAvailable  *byte
	SubIDAvailable        *byte
	SharedSubAvailable    *byte
	ServerKeepAlive       *uint16
	User                  []User
}

func (p *ConnAckProperties) Encode() []byte {
	var ret []byte
	if p.SessionExpiryInterval != nil {
		ret = append(ret, SessionExpiryIntervalProp)
		ret = append(ret, codec.EncodeUint32(*p.SessionExpiryInterval)...)
	}
	if p.ReceiveMaximum != nil {
		ret = append(ret, ReceiveMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.ReceiveMaximum)...)
	}
	if p.MaximumQoS != nil {
		ret = append(ret, MaximumQoSProp, *p.MaximumQoS)
	}
	if p.RetainAvailable != nil {
		ret = append(ret, RetainAvailableProp, *p.RetainAvailable)
	}
	if p.MaximumPacketSize != nil {
		ret = append(ret, MaximumPacketSizeProp)
		ret = append(ret, codec.EncodeUint32(*p.MaximumPacketSize)...)
	}
	if p.AssignedClientID != "" {
		ret = append(ret, AssignedClientIDProp)
		ret = append(ret, codec.EncodeString(p.AssignedClientID)...)
	}
	if p.TopicAliasMaximum != nil {
		ret = append(ret, TopicAliasMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.TopicAliasMaximum)...)
	}
	if p.ReasonString != "" {
		ret = append(ret, ReasonStringProp)
		ret = append(ret, codec.EncodeString(p.ReasonString)...)
	}
	if p.WildcardSubAvailable != nil {
		ret = append(ret, WildcardSubAvailableProp, *p.WildcardSubAvailable)
	}
	if p.SubIDAvailable != nil {
		ret = append(ret, SubIDAvailableProp, *p.SubIDAvailable)
	}
	if p.SharedSubAvailable != nil {
		ret = append(ret, SharedSubAvailableProp, *p.SharedSubAvailable)
	}
	if p.ServerKeepAlive != nil {
		ret = append(ret, ServerKeepAliveProp)
		ret = append(ret, codec.EncodeUint16(*p.ServerKeepAlive)...)
	}
	return encodeUserProps(ret, p.User)
}

func (p *ConnAckProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case SessionExpiryIntervalProp:
			se, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.SessionExpiryInterval = &se
		case ReceiveMaximumProp:
			rm, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.ReceiveMaximum = &rm
		case MaximumQoSProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.MaximumQoS = &b
		case RetainAvailableProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RetainAvailable = &b
		case MaximumPacketSizeProp:
			mp, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MaximumPacketSize = &mp
		case AssignedClientIDProp:
			if p.AssignedClientID, err = codec.DecodeString(r); err != nil {
				return err
			}
		case TopicAliasMaximumProp:
			ta, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.TopicAliasMaximum = &ta
		case ReasonStringProp:
			if p.ReasonString, err = codec.DecodeString(r); err != nil {
				return err
			}
		case WildcardSubAvailableProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.WildcardSubAvailable = &b
		case SubIDAvailableProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.SubIDAvailable = &b
		case SharedSubAvailableProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.SharedSubAvailable = &b
		case ServerKeepAliveProp:
			ka, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.ServerKeepAlive = &ka
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}

// PublishProperties is the PUBLISH properties block.
type PublishProperties struct {
	PayloadFormat          *byte
	MessageExpiry          *uint32
	TopicAlias             *uint16
	ResponseTopic          string
	CorrelationData        []byte
	SubscriptionIdentifier *int
	ContentType            string
	User                   []User
}

func (p *PublishProperties) Encode() []byte {
	var ret []byte
	if p.PayloadFormat != nil {
		ret = append(ret, PayloadFormatProp, *p.PayloadFormat)
	}
	if p.MessageExpiry != nil {
		ret = append(ret, MessageExpiryProp)
		ret = append(ret, codec.EncodeUint32(*p.MessageExpiry)...)
	}
	if p.TopicAlias != nil {
		ret = append(ret, TopicAliasProp)
		ret = append(ret, codec.EncodeUint16(*p.TopicAlias)...)
	}
	if p.ResponseTopic != "" {
		ret = append(ret, ResponseTopicProp)
		ret = append(ret, codec.EncodeString(p.ResponseTopic)...)
	}
	if p.CorrelationData != nil {
		ret = append(ret, CorrelationDataProp)
		ret = append(ret, codec.EncodeBytes(p.CorrelationData)...)
	}
	if p.SubscriptionIdentifier != nil {
		ret = append(ret, SubscriptionIdentifierProp)
		ret = append(ret, codec.EncodeVBI(*p.SubscriptionIdentifier)...)
	}
	if p.ContentType != "" {
		ret = append(ret, ContentTypeProp)
		ret = append(ret, codec.EncodeString(p.ContentType)...)
	}
	return encodeUserProps(ret, p.User)
}

func (p *PublishProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case PayloadFormatProp:
			b, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.PayloadFormat = &b
		case MessageExpiryProp:
			me, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MessageExpiry = &me
		case TopicAliasProp:
			ta, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.TopicAlias = &ta
		case ResponseTopicProp:
			if p.ResponseTopic, err = codec.DecodeString(r); err != nil {
				return err
			}
		case CorrelationDataProp:
			if p.CorrelationData, err = codec.DecodeBytes(r); err != nil {
				return err
			}
		case SubscriptionIdentifierProp:
			si, err := codec.DecodeVBI(r)
			if err != nil {
				return err
			}
			p.SubscriptionIdentifier = &si
		case ContentTypeProp:
			if p.ContentType, err = codec.DecodeString(r); err != nil {
				return err
			}
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}

// SubscribeProperties is the SUBSCRIBE properties block.
type SubscribeProperties struct {
	SubscriptionIdentifier *int
	User                   []User
}

func (p *SubscribeProperties) Encode() []byte {
	var ret []byte
	if p.SubscriptionIdentifier != nil {
		ret = append(ret, SubscriptionIdentifierProp)
		ret = append(ret, codec.EncodeVBI(*p.SubscriptionIdentifier)...)
	}
	return encodeUserProps(ret, p.User)
}

func (p *SubscribeProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case SubscriptionIdentifierProp:
			si, err := codec.DecodeVBI(r)
			if err != nil {
				return err
			}
			p.SubscriptionIdentifier = &si
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}

// UserProperties is the properties block for packets that only carry
// user properties (UNSUBSCRIBE).
type UserProperties struct {
	User []User
}

func (p *UserProperties) Encode() []byte {
	return encodeUserProps(nil, p.User)
}

func (p *UserProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}

// DisconnectProperties is the DISCONNECT properties block.
type DisconnectProperties struct {
	SessionExpiryInterval *uint32
	ReasonString          string
	ServerReference       string
	User                  []User
}

func (p *DisconnectProperties) Encode() []byte {
	var ret []byte
	if p.SessionExpiryInterval != nil {
		ret = append(ret, SessionExpiryIntervalProp)
		ret = append(ret, codec.EncodeUint32(*p.SessionExpiryInterval)...)
	}
	if p.ReasonString != "" {
		ret = append(ret, ReasonStringProp)
		ret = append(ret, codec.EncodeString(p.ReasonString)...)
	}
	if p.ServerReference != "" {
		ret = append(ret, ServerReferenceProp)
		ret = append(ret, codec.EncodeString(p.ServerReference)...)
	}
	return encodeUserProps(ret, p.User)
}

func (p *DisconnectProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case SessionExpiryIntervalProp:
			se, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.SessionExpiryInterval = &se
		case ReasonStringProp:
			if p.ReasonString, err = codec.DecodeString(r); err != nil {
				return err
			}
		case ServerReferenceProp:
			if p.ServerReference, err = codec.DecodeString(r); err != nil {
				return err
			}
		case UserProp:
			u, err := decodeUserProp(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, u)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidProperty, prop)
		}
	}
}
