package dynstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	ptypes "github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// Attribute names of the durable item. DeviceID and Timestamp form the table's key.
const (
	AttrDeviceID  = "deviceId"
	AttrTimestamp = "timestamp"
	AttrTTL       = "ttl"
)

// projectedKeys are the optional payload keys copied onto a BufferedItem.
var projectedKeys = []string{"sensor", "value", "status", "location", "topics"}

// ErrMissingIdentity is returned when a payload has no usable deviceId or
// timestamp. Such a payload cannot be keyed in the durable store.
var ErrMissingIdentity = errors.New("payload has no usable deviceId/timestamp identity")

// ItemKey is the composite identity of a BufferedItem. Two items with the same
// key overwrite each other in the durable store; the later write wins.
type ItemKey struct {
	DeviceID  string
	Timestamp string
}

func (k ItemKey) String() string {
	return k.DeviceID + "#" + k.Timestamp
}

// BufferedItem is the durable-store representation of one envelope.
//
// Field values are normalised: numbers are decimal.Decimal, lists are []any and
// objects are map[string]any. Strings, booleans and nil are kept as they are.
type BufferedItem struct {
	DeviceID  string
	Timestamp decimal.Decimal
	Fields    map[string]any
	// ExpiresAt is written as the ttl attribute when non-zero (epoch seconds).
	ExpiresAt int64
}

// ItemOptions controls optional attributes added by BuildItem.
type ItemOptions struct {
	// TTL, when positive, sets ExpiresAt to Now()+TTL.
	TTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// BuildItem projects p onto a BufferedItem.
func BuildItem(p ptypes.Payload, opts ItemOptions) (*BufferedItem, error) {
	deviceID, ok := p.String(AttrDeviceID)
	if !ok || deviceID == "" {
		return nil, fmt.Errorf("%w: deviceId missing or not a string", ErrMissingIdentity)
	}
	ts, ok := toDecimal(p[AttrTimestamp])
	if !ok {
		return nil, fmt.Errorf("%w: timestamp missing or not a number", ErrMissingIdentity)
	}

	item := &BufferedItem{
		DeviceID:  deviceID,
		Timestamp: ts,
		Fields:    make(map[string]any, len(projectedKeys)),
	}
	for _, key := range projectedKeys {
		if v, present := p[key]; present {
			item.Fields[key] = normalize(v)
		}
	}

	if opts.TTL > 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		item.ExpiresAt = now().Add(opts.TTL).Unix()
	}
	return item, nil
}

// Key returns the composite identity of the item.
func (i *BufferedItem) Key() ItemKey {
	return ItemKey{DeviceID: i.DeviceID, Timestamp: i.Timestamp.String()}
}

// FromFloat64 converts a float to the shortest decimal that parses back to the
// same float, so ToFloat64(FromFloat64(v)) == v.
func FromFloat64(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// ToFloat64 converts d back to the nearest float.
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		// Integers stay exact. Anything else goes through float64 so the
		// stored N never exceeds DynamoDB's 38 significant digits.
		if i, err := n.Int64(); err == nil {
			return decimal.NewFromInt(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return decimal.Decimal{}, false
		}
		return FromFloat64(f), true
	case float64:
		return FromFloat64(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Decimal{}, false
}

func normalize(v any) any {
	if d, ok := toDecimal(v); ok {
		return d
	}
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

// MarshalDynamoDBAttributeValue implements attributevalue.Marshaler. Decimals
// are written as N attributes from their exact string form.
func (i BufferedItem) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	m := make(map[string]types.AttributeValue, len(i.Fields)+3)
	for k, v := range i.Fields {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		m[k] = av
	}
	m[AttrDeviceID] = &types.AttributeValueMemberS{Value: i.DeviceID}
	m[AttrTimestamp] = &types.AttributeValueMemberN{Value: i.Timestamp.String()}
	if i.ExpiresAt != 0 {
		m[AttrTTL] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", i.ExpiresAt)}
	}
	return &types.AttributeValueMemberM{Value: m}, nil
}

func toAttributeValue(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case decimal.Decimal:
		return &types.AttributeValueMemberN{Value: t.String()}, nil
	case []any:
		list := make([]types.AttributeValue, len(t))
		for idx, e := range t {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			list[idx] = av
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(t))
		for k, e := range t {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("unsupported attribute type %T", v)
}
