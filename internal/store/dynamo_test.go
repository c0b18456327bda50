package store

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execsim/personachat/internal/conversation"
	"github.com/execsim/personachat/internal/persona"
)

func sampleRecord() conversation.Record {
	return conversation.Record{
		ID:          "01JDX0000000000000000000AB",
		Persona:     persona.CFO,
		CompanyRef:  "https://www.linkedin.com/company/acme-robotics/",
		CompanyName: "Acme Robotics",
		Messages: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "What's our runway?"},
			{Role: conversation.RoleAssistant, Content: "About eighteen months."},
		},
	}
}

func TestItemRoundTrip(t *testing.T) {
	rec := sampleRecord()

	got, err := fromItem(toItem(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestItemRoundTripEmptyMessages(t *testing.T) {
	rec := sampleRecord()
	rec.Messages = nil

	got, err := fromItem(toItem(rec))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Empty(t, got.Messages)
}

func TestAttributeValueRoundTrip(t *testing.T) {
	// The marshalled map must survive the wire shape DynamoDB stores:
	// marshal -> unmarshal -> same item, idempotently.
	item := toItem(sampleRecord())

	av, err := attributevalue.MarshalMap(item)
	require.NoError(t, err)
	assert.Contains(t, av, "conversation_id")
	assert.Contains(t, av, "persona")
	assert.Contains(t, av, "company_name")
	assert.Contains(t, av, "linkedin_url")
	assert.Contains(t, av, "messages")

	var back conversationItem
	require.NoError(t, attributevalue.UnmarshalMap(av, &back))
	assert.Equal(t, item, back)

	av2, err := attributevalue.MarshalMap(back)
	require.NoError(t, err)
	assert.Equal(t, av, av2)
}

func TestFromItemRejectsUnknownPersona(t *testing.T) {
	item := toItem(sampleRecord())
	item.Persona = "intern"

	_, err := fromItem(item)
	assert.Error(t, err)
}

func TestSummaryProjectionShape(t *testing.T) {
	// The listing projection must unmarshal from a full item map while
	// carrying only id, persona, and company name.
	av, err := attributevalue.MarshalMap(toItem(sampleRecord()))
	require.NoError(t, err)

	var s Summary
	require.NoError(t, attributevalue.UnmarshalMap(av, &s))
	assert.Equal(t, "01JDX0000000000000000000AB", s.ID)
	assert.Equal(t, "CFO", s.Persona)
	assert.Equal(t, "Acme Robotics", s.CompanyName)
}
