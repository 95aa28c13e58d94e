// Package notification bridges provider push notifications into the sync
// pipeline: a Pub/Sub message about a changed account enqueues a sync run
// and nudges the user's devices.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	authrepo "daybrief-backend/internal/auth/repository"
	conndomain "daybrief-backend/internal/connection/domain"
	connrepo "daybrief-backend/internal/connection/repository"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/orchestrator"
	"daybrief-backend/pkg/fcm"
	"daybrief-backend/pkg/sse"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// ProviderNotification is the payload Google pushes when a watched mailbox
// changes.
type ProviderNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

type Service struct {
	pubsubClient *pubsub.Client
	sseManager   *sse.Manager
	connRepo     connrepo.ConnectionRepository
	fcmRepo      authrepo.FCMTokenRepository
	fcmClient    *fcm.Client
	orch         *orchestrator.Orchestrator
	projectID    string
	topicName    string
	subName      string

	// Pushes are at-least-once; track the last history id per connection so
	// redeliveries do not enqueue again.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(projectID, topicName string, sseManager *sse.Manager, connRepo connrepo.ConnectionRepository, fcmRepo authrepo.FCMTokenRepository, fcmClient *fcm.Client, orch *orchestrator.Orchestrator, credentialsFile string) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient:  client,
		sseManager:    sseManager,
		connRepo:      connRepo,
		fcmRepo:       fcmRepo,
		fcmClient:     fcmClient,
		orch:          orch,
		projectID:     projectID,
		topicName:     topicName,
		subName:       topicName + "-sub", // Convention: topic-sub
		lastHistoryID: make(map[string]uint64),
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic does not exist, cannot create subscription")
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification ProviderNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	conn, err := s.connRepo.FindByExternalAccount(conndomain.ProviderMail, notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding connection for %s: %v", notification.EmailAddress, err)
		return
	}
	if conn == nil {
		log.Printf("[PubSub] No connection for account: %s", notification.EmailAddress)
		return
	}

	s.mu.Lock()
	lastHID, seen := s.lastHistoryID[conn.ID]
	if seen && notification.HistoryID <= lastHID {
		s.mu.Unlock()
		log.Printf("[PubSub] Skipping duplicate notification for connection %s (historyId %d <= %d)", conn.ID, notification.HistoryID, lastHID)
		return
	}
	s.lastHistoryID[conn.ID] = notification.HistoryID
	s.mu.Unlock()

	// The push itself carries no message data; it only tells us the account
	// moved. The sync run does the actual fetch.
	s.orch.Enqueue(conn.UserID, []string{conn.Provider}, syncdomain.TriggerAuto)

	s.sseManager.SendToUser(conn.UserID, "provider.update", map[string]interface{}{
		"provider":  conn.Provider,
		"historyId": notification.HistoryID,
		"timestamp": time.Now(),
	})

	if s.fcmClient != nil && s.fcmRepo != nil {
		go s.pushToDevices(conn.UserID, conn.Provider)
	}
}

func (s *Service) pushToDevices(userID, providerName string) {
	tokens, err := s.fcmRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[FCM] Error getting tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failedTokens, err := s.fcmClient.SendToDevices(context.Background(), tokenStrings, fcm.NotificationData{
		Title: "Your briefing may have changed",
		Body:  fmt.Sprintf("New activity on your %s account", providerName),
		Data: map[string]string{
			"type":     "provider.update",
			"provider": providerName,
		},
	})
	if err != nil {
		log.Printf("[FCM] Error sending notifications: %v", err)
		return
	}

	for _, token := range failedTokens {
		if err := s.fcmRepo.DeleteToken(token); err != nil {
			log.Printf("[FCM] Failed to clean up token: %v", err)
		}
	}
}
