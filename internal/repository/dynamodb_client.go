package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const (
	skMeta       = "META#"
	skPrefixMsg  = "MSG#"
	skPrefixSeen = "SEEN#"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores conversations in a single DynamoDB table. An address index
// item (ADDR#<address>) points at the conversation item (CONV#<id>); dedup
// markers and audit rows live under the conversation partition.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{
		api:       api,
		tableName: tableName,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func convPK(id string) string {
	return "CONV#" + id
}

func addrPK(address string) string {
	return "ADDR#" + address
}

func leasePK(address string) string {
	return "LOCK#" + address
}

func msgSK(ts time.Time, direction domain.AuditDirection) string {
	return skPrefixMsg + ts.UTC().Format(timeLayout) + "#" + string(direction)
}

func ttlAfter(now time.Time, d time.Duration) int64 {
	return now.Add(d).Unix()
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// GetOrCreate returns the conversation for address, creating it on first
// contact. Concurrent creators converge on the row written first.
func (c *Client) GetOrCreate(ctx context.Context, address string) (domain.Conversation, error) {
	address = domain.NormalizeAddress(address)
	if address == "" {
		return domain.Conversation{}, errors.New("repository: GetOrCreate: address must not be empty")
	}

	conv, err := c.getByAddress(ctx, address)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Conversation{}, fmt.Errorf("repository: GetOrCreate: %w", err)
	}

	conv = newConversation(c.newID(), address, c.now().UTC())
	item, err := conversationItem(conv)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetOrCreate: %w", err)
	}
	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                addressItem(address, conv.ID),
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			// Lost the creation race; the winner's row is authoritative.
			existing, getErr := c.getByAddress(ctx, address)
			if getErr == nil {
				return existing, nil
			}
		}
		return domain.Conversation{}, fmt.Errorf("repository: GetOrCreate transact: %w", err)
	}
	return conv, nil
}

func (c *Client) getByAddress(ctx context.Context, address string) (domain.Conversation, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(addrPK(address), skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: address lookup: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, domain.ErrNotFound
	}
	id, err := strAttr(out.Item, "conversationId")
	if err != nil {
		return domain.Conversation{}, err
	}
	return c.Get(ctx, id)
}

// Get loads a conversation by id.
func (c *Client) Get(ctx context.Context, id string) (domain.Conversation, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(convPK(id), skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, fmt.Errorf("repository: Get %q: %w", id, domain.ErrNotFound)
	}
	conv, err := itemToConversation(out.Item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	return conv, nil
}

// UpdateFlow replaces the whole flow state and stamps lastActivity.
func (c *Client) UpdateFlow(ctx context.Context, id string, flow domain.FlowName, data domain.FlowData) error {
	raw, err := encodeFlowData(flow, data)
	if err != nil {
		return err
	}
	err = c.update(ctx, id, "SET #flow = :flow, flowData = :data, lastActivity = :ts", map[string]types.AttributeValue{
		":flow": &types.AttributeValueMemberS{Value: string(flow)},
		":data": &types.AttributeValueMemberS{Value: raw},
		":ts":   &types.AttributeValueMemberS{Value: formatTime(c.now())},
	}, map[string]string{"#flow": "flow"})
	if err != nil {
		return fmt.Errorf("repository: UpdateFlow: %w", err)
	}
	return nil
}

// LinkUser binds the conversation to a platform account.
func (c *Client) LinkUser(ctx context.Context, id, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: LinkUser: user id must not be empty")
	}
	err := c.update(ctx, id, "SET linkedUserId = :uid", map[string]types.AttributeValue{
		":uid": &types.AttributeValueMemberS{Value: userID},
	}, nil)
	if err != nil {
		return fmt.Errorf("repository: LinkUser: %w", err)
	}
	return nil
}

// UnlinkUser removes the account binding.
func (c *Client) UnlinkUser(ctx context.Context, id string) error {
	if err := c.update(ctx, id, "REMOVE linkedUserId", nil, nil); err != nil {
		return fmt.Errorf("repository: UnlinkUser: %w", err)
	}
	return nil
}

func (c *Client) update(ctx context.Context, id, expr string, values map[string]types.AttributeValue, names map[string]string) error {
	in := &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 itemKey(convPK(id), skMeta),
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	}
	if len(values) > 0 {
		in.ExpressionAttributeValues = values
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}
	_, err := c.api.UpdateItem(ctx, in)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("conversation %q: %w", id, domain.ErrNotFound)
		}
		return err
	}
	return nil
}

// MarkSeen records a provider message id for the conversation. It returns
// false when the id was already recorded.
func (c *Client) MarkSeen(ctx context.Context, id, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return true, nil
	}
	now := c.now()
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":  &types.AttributeValueMemberS{Value: convPK(id)},
			"SK":  &types.AttributeValueMemberS{Value: skPrefixSeen + providerMessageID},
			"at":  &types.AttributeValueMemberS{Value: formatTime(now)},
			"ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlAfter(now, seenTTL), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("repository: MarkSeen: %w", err)
	}
	return true, nil
}

// AcquireLease writes a LOCK#<address> item owned by owner. The put only
// succeeds when no lease exists, the existing one has expired, or owner
// already holds it.
func (c *Client) AcquireLease(ctx context.Context, address, owner string, ttl time.Duration) (bool, error) {
	address = domain.NormalizeAddress(address)
	if address == "" || owner == "" {
		return false, errors.New("repository: AcquireLease: address and owner are required")
	}
	now := c.now()
	item := itemKey(leasePK(address), skMeta)
	item["owner"] = &types.AttributeValueMemberS{Value: owner}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttl).UnixMilli(), 10)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlAfter(now, ttl+time.Hour), 10)}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR expiresAt <= :now OR #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("repository: AcquireLease: %w", err)
	}
	return true, nil
}

// ReleaseLease deletes the lease item if owner still holds it.
func (c *Client) ReleaseLease(ctx context.Context, address, owner string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(c.tableName),
		Key:                      itemKey(leasePK(domain.NormalizeAddress(address)), skMeta),
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil
		}
		return fmt.Errorf("repository: ReleaseLease: %w", err)
	}
	return nil
}

// WriteMessage appends a row to the conversation's audit trail.
func (c *Client) WriteMessage(ctx context.Context, rec domain.AuditRecord) error {
	if rec.ConversationID == "" {
		return errors.New("repository: WriteMessage: conversation id is required")
	}
	if rec.At.IsZero() {
		rec.At = c.now()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                messageItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: WriteMessage: %w", err)
	}
	return nil
}

func addressItem(address, id string) map[string]types.AttributeValue {
	item := itemKey(addrPK(address), skMeta)
	item["conversationId"] = &types.AttributeValueMemberS{Value: id}
	return item
}

func conversationItem(conv domain.Conversation) (map[string]types.AttributeValue, error) {
	raw, err := encodeFlowData(conv.State.Flow, conv.State.Data)
	if err != nil {
		return nil, err
	}
	item := itemKey(convPK(conv.ID), skMeta)
	item["id"] = &types.AttributeValueMemberS{Value: conv.ID}
	item["channelAddress"] = &types.AttributeValueMemberS{Value: conv.ChannelAddress}
	item["flow"] = &types.AttributeValueMemberS{Value: string(conv.State.Flow)}
	item["flowData"] = &types.AttributeValueMemberS{Value: raw}
	item["lastActivity"] = &types.AttributeValueMemberS{Value: formatTime(conv.State.LastActivity)}
	item["isActive"] = &types.AttributeValueMemberBOOL{Value: conv.IsActive}
	item["createdAt"] = &types.AttributeValueMemberS{Value: formatTime(conv.CreatedAt)}
	if conv.LinkedUserID != "" {
		item["linkedUserId"] = &types.AttributeValueMemberS{Value: conv.LinkedUserID}
	}
	return item, nil
}

func messageItem(rec domain.AuditRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":                &types.AttributeValueMemberS{Value: convPK(rec.ConversationID)},
		"SK":                &types.AttributeValueMemberS{Value: msgSK(rec.At, rec.Direction)},
		"channelAddress":    &types.AttributeValueMemberS{Value: rec.ChannelAddress},
		"direction":         &types.AttributeValueMemberS{Value: string(rec.Direction)},
		"kind":              &types.AttributeValueMemberS{Value: rec.Kind},
		"body":              &types.AttributeValueMemberS{Value: rec.Body},
		"providerMessageId": &types.AttributeValueMemberS{Value: rec.ProviderMessageID},
		"ttl":               &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlAfter(rec.At, auditTTL), 10)},
	}
}

// itemToConversation converts a DynamoDB attribute map to a Conversation.
func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Conversation{}, err
	}
	address, err := strAttr(item, "channelAddress")
	if err != nil {
		return domain.Conversation{}, err
	}
	flow, err := strAttr(item, "flow")
	if err != nil {
		return domain.Conversation{}, err
	}
	rawData, _ := strAttr(item, "flowData") // allow empty
	lastRaw, _ := strAttr(item, "lastActivity")
	last, err := parseTime(lastRaw)
	if err != nil {
		return domain.Conversation{}, err
	}
	createdRaw, _ := strAttr(item, "createdAt")
	created, err := parseTime(createdRaw)
	if err != nil {
		return domain.Conversation{}, err
	}
	linked, _ := strAttr(item, "linkedUserId") // absent until login
	active, err := boolAttr(item, "isActive")
	if err != nil {
		return domain.Conversation{}, err
	}

	return domain.Conversation{
		ID:             id,
		ChannelAddress: address,
		LinkedUserID:   linked,
		State:          decodeFlowState(flow, rawData, last),
		IsActive:       active,
		CreatedAt:      created,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}
