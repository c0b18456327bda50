// Package store persists conversation records in a DynamoDB table keyed
// by conversation_id.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/execsim/personachat/internal/conversation"
	"github.com/execsim/personachat/internal/persona"
)

// ErrNotFound means no record exists for the requested conversation id.
var ErrNotFound = errors.New("conversation not found")

// UnavailableError wraps an I/O failure talking to the backing table.
// Recoverable: the caller keeps its in-memory state and may retry.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// turnItem is the stored shape of a single message.
type turnItem struct {
	Role    string `dynamodbav:"role"`
	Content string `dynamodbav:"content"`
}

// conversationItem is the DynamoDB record for one conversation.
type conversationItem struct {
	ConversationID string     `dynamodbav:"conversation_id"`
	Persona        string     `dynamodbav:"persona"`
	LinkedInURL    string     `dynamodbav:"linkedin_url"`
	CompanyName    string     `dynamodbav:"company_name"`
	Messages       []turnItem `dynamodbav:"messages"`
}

// Summary is the listing projection: id, persona, and company name only.
// Messages and the raw reference are deliberately excluded.
type Summary struct {
	ID          string `dynamodbav:"conversation_id"`
	Persona     string `dynamodbav:"persona"`
	CompanyName string `dynamodbav:"company_name"`
}

// Store handles DynamoDB operations for conversations.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// New creates a store backed by the given table.
func New(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Upsert writes the full record, replacing any existing item with the
// same id. The caller supplies the authoritative message list each time;
// there is no append-merge here. Concurrent writers to one id are
// last-writer-wins.
func (s *Store) Upsert(ctx context.Context, rec conversation.Record) error {
	av, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("marshal conversation item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	})
	if err != nil {
		return &UnavailableError{Op: "put conversation", Err: err}
	}
	return nil
}

// Get retrieves a single conversation by id.
func (s *Store) Get(ctx context.Context, id string) (conversation.Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"conversation_id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return conversation.Record{}, &UnavailableError{Op: "get conversation", Err: err}
	}
	if result.Item == nil {
		return conversation.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var item conversationItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return conversation.Record{}, fmt.Errorf("unmarshal conversation %s: %w", id, err)
	}
	return fromItem(item)
}

// ListAll scans the table, returning a projection of every stored
// conversation. Ordering is whatever the scan yields.
func (s *Store) ListAll(ctx context.Context) ([]Summary, error) {
	var summaries []Summary

	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            &s.tableName,
		ProjectionExpression: aws.String("conversation_id, persona, company_name"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &UnavailableError{Op: "scan conversations", Err: err}
		}
		var batch []Summary
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal conversation summaries: %w", err)
		}
		summaries = append(summaries, batch...)
	}

	return summaries, nil
}

func toItem(rec conversation.Record) conversationItem {
	item := conversationItem{
		ConversationID: rec.ID,
		Persona:        string(rec.Persona),
		LinkedInURL:    rec.CompanyRef,
		CompanyName:    rec.CompanyName,
		Messages:       make([]turnItem, 0, len(rec.Messages)),
	}
	for _, t := range rec.Messages {
		item.Messages = append(item.Messages, turnItem{Role: string(t.Role), Content: t.Content})
	}
	return item
}

func fromItem(item conversationItem) (conversation.Record, error) {
	p, err := persona.Parse(item.Persona)
	if err != nil {
		return conversation.Record{}, fmt.Errorf("conversation %s: %w", item.ConversationID, err)
	}
	rec := conversation.Record{
		ID:          item.ConversationID,
		Persona:     p,
		CompanyRef:  item.LinkedInURL,
		CompanyName: item.CompanyName,
		Messages:    make([]conversation.Turn, 0, len(item.Messages)),
	}
	for _, t := range item.Messages {
		rec.Messages = append(rec.Messages, conversation.Turn{
			Role:    conversation.Role(t.Role),
			Content: t.Content,
		})
	}
	return rec, nil
}
