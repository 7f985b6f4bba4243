package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pustakbazzar/pustak-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := map[string]struct {
		project string
		name    string
		want    string
	}{
		"short id":      {project: "pustak-prod", name: "pb-notification-events", want: "projects/pustak-prod/topics/pb-notification-events"},
		"full resource": {project: "other", name: "projects/pustak-prod/topics/notify", want: "projects/pustak-prod/topics/notify"},
		"trimmed":       {project: "pustak-prod", name: "  notify ", want: "projects/pustak-prod/topics/notify"},
		"blank name":    {project: "pustak-prod", name: " ", want: ""},
		"no project":    {project: "", name: "notify", want: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, topicResourceName(tc.project, tc.name))
		})
	}
}

func TestNewClientRequiresProjectAndTopic(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{NotificationTopic: "notify"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "pustak"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errNoTopic)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("notify"))
	require.Error(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
}
