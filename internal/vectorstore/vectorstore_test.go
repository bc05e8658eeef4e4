package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToQdrantFilter_AlwaysIncludesEveryBranch(t *testing.T) {
	uid := int64(42)
	f := &Filter{Branches: []Branch{
		{TableName: "contents", IDs: []int64{1, 2, 3}},
		{TableName: "uploaded_files", UserID: &uid},
	}}

	out := toQdrantFilter(f)
	require.NotNil(t, out)
	require.Len(t, out.Should, 2, "every configured branch must survive as its own should-clause")
}

func TestToQdrantFilter_NilForEmptyFilter(t *testing.T) {
	require.Nil(t, toQdrantFilter(nil))
	require.Nil(t, toQdrantFilter(&Filter{}))
}

func TestPayloadToValueMap_RoundTripsScalarFields(t *testing.T) {
	uid := uint64(7)
	p := Payload{
		DocumentID: 99,
		TableName:  "contents",
		Start:      10,
		End:        20,
		Model:      "silatus/gte-Qwen2-7B-instruct-INT4",
		UserID:     &uid,
	}
	values := payloadToValueMap(p)

	require.Equal(t, int64(99), values["document_id"].GetIntegerValue())
	require.Equal(t, "contents", values["table_name"].GetStringValue())
	require.Equal(t, int64(10), values["start"].GetIntegerValue())
	require.Equal(t, int64(20), values["end"].GetIntegerValue())
	require.Equal(t, int64(7), values["user_id"].GetIntegerValue())
}

func TestPayloadToValueMap_OmitsUserIDWhenNil(t *testing.T) {
	values := payloadToValueMap(Payload{DocumentID: 1, TableName: "contents"})
	_, ok := values["user_id"]
	require.False(t, ok)
}

func TestIsNotFound(t *testing.T) {
	require.False(t, IsNotFound(nil))
	require.True(t, IsNotFound(&Error{Op: "upsert", Err: errPlain("collection not found")}))
	require.False(t, IsNotFound(&Error{Op: "upsert", Err: errPlain("permission denied")}))
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
