package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
)

// DynamoAPI is the slice of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Dynamo backs the Store on a DynamoDB table with a (pk, sk) composite key
// and a TTL on the expireAt attribute.
type Dynamo struct {
	client DynamoAPI
	table  string
}

func NewDynamo(client DynamoAPI, table string) *Dynamo {
	return &Dynamo{client: client, table: table}
}

func (d *Dynamo) Get(ctx context.Context, key Key, out any) error {
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       keyAttributes(key),
	})
	if err != nil {
		return fault.Wrap(fault.KindUnavailable, "store.get", err)
	}
	if len(resp.Item) == 0 {
		return fault.New(fault.KindNotFound, "store.get", fmt.Sprintf("no item at pk=%s sk=%s", key.PK, key.SK))
	}
	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return fault.Wrap(fault.KindInvalid, "store.get", err)
	}
	return nil
}

func (d *Dynamo) Put(ctx context.Context, key Key, item any) error {
	attrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fault.Wrap(fault.KindInvalid, "store.put", err)
	}
	attrs["pk"] = &ddbtypes.AttributeValueMemberS{Value: key.PK}
	attrs["sk"] = &ddbtypes.AttributeValueMemberS{Value: key.SK}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      attrs,
	}); err != nil {
		return fault.Wrap(fault.KindUnavailable, "store.put", err)
	}
	return nil
}

func (d *Dynamo) PutIfVacant(ctx context.Context, key Key, item any, now int64) error {
	attrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fault.Wrap(fault.KindInvalid, "store.putifvacant", err)
	}
	attrs["pk"] = &ddbtypes.AttributeValueMemberS{Value: key.PK}
	attrs["sk"] = &ddbtypes.AttributeValueMemberS{Value: key.SK}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                attrs,
		ConditionExpression: aws.String("attribute_not_exists(pk) OR expireAt <= :now"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
		},
	}); err != nil {
		var condErr *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fault.New(fault.KindLeaseConflict, "store.putifvacant", fmt.Sprintf("live item at pk=%s sk=%s", key.PK, key.SK))
		}
		return fault.Wrap(fault.KindUnavailable, "store.putifvacant", err)
	}
	return nil
}

func (d *Dynamo) Update(ctx context.Context, key Key, fields map[string]any, out any) error {
	expr, names, values, err := buildUpdateExpression(fields)
	if err != nil {
		return err
	}
	resp, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       keyAttributes(key),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              ddbtypes.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fault.New(fault.KindNotFound, "store.update", fmt.Sprintf("no item at pk=%s sk=%s", key.PK, key.SK))
		}
		return fault.Wrap(fault.KindUnavailable, "store.update", err)
	}
	if out == nil {
		return nil
	}
	if err := attributevalue.UnmarshalMap(resp.Attributes, out); err != nil {
		return fault.Wrap(fault.KindInvalid, "store.update", err)
	}
	return nil
}

// buildUpdateExpression turns a field set into a SET expression with name
// and value placeholders, one pair per attribute.
func buildUpdateExpression(fields map[string]any) (string, map[string]string, map[string]ddbtypes.AttributeValue, error) {
	if len(fields) == 0 {
		return "", nil, nil, fault.New(fault.KindInvalid, "store.update", "empty field set")
	}

	ordered := make([]string, 0, len(fields))
	for name := range fields {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	sets := make([]string, 0, len(ordered))
	names := make(map[string]string, len(ordered))
	values := make(map[string]ddbtypes.AttributeValue, len(ordered))
	for _, name := range ordered {
		av, err := attributevalue.Marshal(fields[name])
		if err != nil {
			return "", nil, nil, fault.Wrap(fault.KindInvalid, "store.update", err)
		}
		sets = append(sets, fmt.Sprintf("#%s = :%s", name, name))
		names["#"+name] = name
		values[":"+name] = av
	}
	return "SET " + strings.Join(sets, ", "), names, values, nil
}

func keyAttributes(key Key) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"pk": &ddbtypes.AttributeValueMemberS{Value: key.PK},
		"sk": &ddbtypes.AttributeValueMemberS{Value: key.SK},
	}
}
