package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	authrepo "mailpilot-backend/internal/auth/repository"
	pipedomain "mailpilot-backend/internal/pipeline/domain"
	"mailpilot-backend/internal/pipeline/usecase"
	"mailpilot-backend/pkg/fcm"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes on mailbox change.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service listens on the Gmail push topic and triggers incremental sync
// for the notified mailbox.
type Service struct {
	pubsubClient *pubsub.Client
	pipeline     usecase.PipelineUsecase
	projectID    string
	topicName    string
	subName      string

	// lastHistoryID suppresses duplicate pushes per mailbox; Gmail
	// resends notifications aggressively.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(projectID, topicName, credentialsFile string, pipeline usecase.PipelineUsecase) (*Service, error) {
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
		pipeline:      pipeline,
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
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	if s.isDuplicate(notification) {
		return
	}

	log.Printf("[PubSub] Mailbox change for %s (historyId: %d)", notification.EmailAddress, notification.HistoryID)

	if err := s.pipeline.RunForAddress(ctx, notification.EmailAddress); err != nil {
		log.Printf("[PubSub] Pipeline run for %s failed: %v", notification.EmailAddress, err)
	}
}

func (s *Service) isDuplicate(n GmailNotification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastHistoryID[n.EmailAddress]; ok && n.HistoryID <= last {
		return true
	}
	s.lastHistoryID[n.EmailAddress] = n.HistoryID
	return false
}

// FlagNotifier pushes review-flag alerts to the user's devices.
type FlagNotifier struct {
	fcmClient  *fcm.Client
	deviceRepo authrepo.DeviceTokenRepository
}

func NewFlagNotifier(fcmClient *fcm.Client, deviceRepo authrepo.DeviceTokenRepository) *FlagNotifier {
	return &FlagNotifier{
		fcmClient:  fcmClient,
		deviceRepo: deviceRepo,
	}
}

// NotifyReviewFlag fires and forgets; push delivery never blocks or
// fails the pipeline.
func (n *FlagNotifier) NotifyReviewFlag(ctx context.Context, userID string, flag *pipedomain.ReviewFlag, email *pipedomain.NormalizedEmail) {
	if n.fcmClient == nil {
		return
	}

	go func() {
		tokens, err := n.deviceRepo.GetTokensByUserID(userID)
		if err != nil {
			log.Printf("[FCM] Error getting device tokens for user %s: %v", userID, err)
			return
		}
		if len(tokens) == 0 {
			return
		}

		var tokenStrings []string
		for _, t := range tokens {
			tokenStrings = append(tokenStrings, t.Token)
		}

		subject := email.Subject
		if len(subject) > 100 {
			subject = subject[:97] + "..."
		}

		failedTokens, err := n.fcmClient.SendToDevices(context.Background(), tokenStrings, fcm.NotificationData{
			Title: "Email needs review",
			Body:  fmt.Sprintf("%s: %s", email.FromAddress, subject),
			Data: map[string]string{
				"type":         "review_flag",
				"flag_id":      flag.ID,
				"email_id":     flag.EmailID,
				"click_action": "/review/" + flag.ID,
			},
		})
		if err != nil {
			log.Printf("[FCM] Error sending review-flag notification: %v", err)
			return
		}

		for _, token := range failedTokens {
			n.deviceRepo.DeleteToken(token)
		}
	}()
}
