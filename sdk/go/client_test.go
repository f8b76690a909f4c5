package protodesksdk_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/app"
	"protodesk/internal/engine"
	"protodesk/internal/server"
	protodesksdk "protodesk/sdk/go"
)

func TestClientAgainstServer(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()
	cust, err := a.Engine.CreateCustomer(ctx, engine.CustomerOptions{FirstName: "Ana", LastName: "Silva", Email: "ana@example.com"})
	require.NoError(t, err)
	broker, err := a.Engine.CreatePersonnel(ctx, engine.PersonnelOptions{FirstName: "Rui", LastName: "Costa", Email: "rui@example.com"})
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: a.Engine, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	token, err := server.SignToken("sdk-secret", broker.ID, 0)
	require.NoError(t, err)
	c := protodesksdk.New(ts.URL)
	c.BearerToken = token
	c.HTTPClient = ts.Client()

	statuses, err := c.Statuses(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)

	p, err := c.CreateProtocol(ctx, protodesksdk.NewProtocol{
		Title: "Roof repair", Description: "Tiles", CustomerID: cust.ID, AssignedTo: broker.ID, Priority: "Low",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.Number)
	assert.Equal(t, "Low", p.Priority)

	_, err = c.AddComment(ctx, p.ID, "on site tomorrow")
	require.NoError(t, err)
	att, err := c.UploadAttachment(ctx, p.ID, "photo.jpg", "image/jpeg", strings.NewReader("jpegdata"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", att.Kind)

	var terminal int64
	for _, s := range statuses {
		if s.IsTerminal {
			terminal = s.ID
			break
		}
	}
	require.NotZero(t, terminal)
	_, err = c.ChangeStatus(ctx, p.ID, terminal, "done")
	require.NoError(t, err)
	_, err = c.ChangeStatus(ctx, p.ID, statuses[0].ID, "")
	assert.True(t, protodesksdk.IsCode(err, "invalid_transition"), "%v", err)

	evts, err := c.Events(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, evts, 4)
	for i, evt := range evts {
		assert.Equal(t, int64(i+1), evt.Seq)
	}

	items, err := c.Timeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	_, err = c.GetProtocol(ctx, 404)
	assert.True(t, protodesksdk.IsCode(err, "not_found"))

	page, err := c.ListProtocols(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}
