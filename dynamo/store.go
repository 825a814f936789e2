// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package dynamo provides a counter store in an Amazon DynamoDB
// table.  The table must already exist with a string partition key
// named "id"; each counter is one item.  Writes are conditional on the
// stored version attribute.
package dynamo

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"github.com/diffeo/go-counter/counter"
)

// DefaultTable is the table name used if the address names none.
const DefaultTable = "counters"

const (
	attrID          = "id"
	attrValue       = "value"
	attrCreatedAt   = "created_at"
	attrLastUpdated = "last_updated"
	attrLastUser    = "last_user"
	attrVersion     = "version"
)

type dynamoStore struct {
	client *dynamodb.Client
	table  string
}

// Address is the parsed form of a DynamoDB backend address,
// "table?region=us-east-1&endpoint=http://localhost:8000".  Region
// and endpoint are optional and otherwise come from the usual AWS
// environment.
type Address struct {
	Table    string
	Region   string
	Endpoint string
}

// ParseAddress parses a backend address.
func ParseAddress(address string) (Address, error) {
	u, err := url.Parse(address)
	if err != nil {
		return Address{}, err
	}
	addr := Address{
		Table:    u.Path,
		Region:   u.Query().Get("region"),
		Endpoint: u.Query().Get("endpoint"),
	}
	if addr.Table == "" {
		addr.Table = DefaultTable
	}
	return addr, nil
}

// New creates a DynamoDB client for the table named in address.  It
// does not contact the service.
func New(address string) (counter.Store, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, errors.Wrap(err, "parsing dynamodb address")
	}
	var opts []func(*config.LoadOptions) error
	if addr.Region != "" {
		opts = append(opts, config.WithRegion(addr.Region))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS configuration")
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if addr.Endpoint != "" {
			o.BaseEndpoint = aws.String(addr.Endpoint)
		}
	})
	return &dynamoStore{client: client, table: addr.Table}, nil
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrID: &types.AttributeValueMemberS{Value: id},
	}
}

func number(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func encode(rec counter.Record) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrID:          &types.AttributeValueMemberS{Value: rec.ID},
		attrValue:       number(rec.Value),
		attrCreatedAt:   number(rec.CreatedAt.UnixNano()),
		attrLastUpdated: number(rec.LastUpdated.UnixNano()),
		attrLastUser:    &types.AttributeValueMemberS{Value: rec.LastUser},
		attrVersion:     number(rec.Version),
	}
}

func getNumber(item map[string]types.AttributeValue, name string) (int64, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.Errorf("attribute %q is not a number", name)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func decode(id string, item map[string]types.AttributeValue) (counter.Record, error) {
	rec := counter.Record{ID: id}
	if s, ok := item[attrLastUser].(*types.AttributeValueMemberS); ok {
		rec.LastUser = s.Value
	}
	var err error
	if rec.Value, err = getNumber(item, attrValue); err != nil {
		return rec, err
	}
	if rec.Version, err = getNumber(item, attrVersion); err != nil {
		return rec, err
	}
	var ns int64
	if ns, err = getNumber(item, attrCreatedAt); err != nil {
		return rec, err
	}
	rec.CreatedAt = time.Unix(0, ns).UTC()
	if ns, err = getNumber(item, attrLastUpdated); err != nil {
		return rec, err
	}
	rec.LastUpdated = time.Unix(0, ns).UTC()
	return rec, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *dynamoStore) Get(ctx context.Context, id string) (counter.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "fetching counter %q", id)
	}
	if len(out.Item) == 0 {
		return counter.Record{}, counter.ErrNoSuchCounter{ID: id}
	}
	rec, err := decode(id, out.Item)
	return rec, errors.Wrapf(err, "decoding counter %q", id)
}

func (s *dynamoStore) Put(ctx context.Context, rec counter.Record) (counter.Record, error) {
	stored := rec
	stored.Version++

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      encode(stored),
	}
	if rec.Version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#id)")
		input.ExpressionAttributeNames = map[string]string{"#id": attrID}
	} else {
		input.ConditionExpression = aws.String("#version = :version")
		input.ExpressionAttributeNames = map[string]string{"#version": attrVersion}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":version": number(rec.Version),
		}
	}
	_, err := s.client.PutItem(ctx, input)
	if isConditionFailed(err) {
		return counter.Record{}, counter.ErrConflict
	}
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "writing counter %q", rec.ID)
	}
	return stored, nil
}

func (s *dynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      itemKey(id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrID},
	})
	if isConditionFailed(err) {
		return counter.ErrNoSuchCounter{ID: id}
	}
	return errors.Wrapf(err, "deleting counter %q", id)
}

func (s *dynamoStore) Close() error {
	return nil
}
