//go:build integration

package main_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/safar-hail/service-maps/internal/application"
	"github.com/safar-hail/service-maps/internal/bridge"
	"github.com/safar-hail/service-maps/internal/config"
	"github.com/safar-hail/service-maps/internal/domain/trip"
	"github.com/safar-hail/service-maps/internal/events"
	"github.com/safar-hail/service-maps/internal/geocode"
	"github.com/safar-hail/service-maps/internal/repository"
	"github.com/safar-hail/service-maps/internal/surface"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// tripStack holds wired-up maps service components: an embedded surface
// runtime talking to the bridge over a loopback transport, a trip service,
// and a dispatch event consumer.
type tripStack struct {
	Service         *application.TripService
	Consumer        *events.DispatchEventConsumer
	Bridge          *bridge.Bridge
	Display         *surface.DisplayState
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	// Start PostgreSQL (PostGIS) container with log-based wait strategy.
	pgReq := testcontainers.ContainerRequest{
		Image:        "postgis/postgis:16-3.4-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_maps",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_maps sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	// Enable uuid-ossp and auto-migrate.
	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error)
	require.NoError(t, db.AutoMigrate(&repository.TripModel{}))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, events.TopicTripEvents, events.TopicDispatchEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// newGeocodeTestServer serves canned geocoding search and directions
// responses for the addresses the integration tests use.
func newGeocodeTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	known := map[string][2]float64{ // display text -> [lng, lat]
		"Teen Talwar, Clifton":        {67.0300, 24.8138},
		"Jinnah International Airport": {67.1608, 24.9065},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		features := []map[string]interface{}{}
		if coords, ok := known[q]; ok {
			features = append(features, map[string]interface{}{
				"geometry": map[string]interface{}{
					"type":        "Point",
					"coordinates": coords,
				},
				"properties": map[string]interface{}{
					"name":         q,
					"display_name": q + ", Karachi, Sindh, Pakistan",
				},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"type":     "FeatureCollection",
			"features": features,
		})
	})
	mux.HandleFunc("/directions", func(w http.ResponseWriter, r *http.Request) {
		// Six points between Clifton and the airport, [lng, lat] order.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"type": "FeatureCollection",
			"features": []map[string]interface{}{{
				"geometry": map[string]interface{}{
					"type": "LineString",
					"coordinates": [][2]float64{
						{67.0300, 24.8138},
						{67.0600, 24.8300},
						{67.0900, 24.8500},
						{67.1200, 24.8700},
						{67.1450, 24.8900},
						{67.1608, 24.9065},
					},
				},
			}},
		})
	})

	return httptest.NewServer(mux)
}

// setupTripStack wires up the full maps service stack with an embedded
// surface runtime and a fast animation interval.
func setupTripStack(t *testing.T, ctx context.Context, db *gorm.DB, brokers []string, geocodeURL string) *tripStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	tripRepo := repository.NewGormTripRepository(db)
	fare := trip.NewStandardFareStrategy()
	producer := events.NewProducer(brokers, logger)

	resolver := geocode.NewResolver(config.GeocodeConfig{
		SearchBaseURL:     geocodeURL,
		DirectionsBaseURL: geocodeURL + "/directions",
		Timeout:           5 * time.Second,
	}, logger)

	hostT, surfaceT := bridge.NewLoopback(16)
	mapBridge := bridge.New(hostT, logger)

	display := surface.NewDisplayState()
	runtime := surface.NewRuntime(surfaceT, display, surface.Options{
		AnimateInterval: 5 * time.Millisecond,
		FitBoundsPad:    0.02,
	}, logger)

	tripSvc := application.NewTripService(tripRepo, resolver, fare, mapBridge, producer, logger)
	tripSvc.RegisterBridgeHandlers()

	go mapBridge.Run(ctx)
	go runtime.Run(ctx)

	// The runtime announces readiness as soon as its loop starts.
	require.Eventually(t, func() bool { return mapBridge.Ready() },
		5*time.Second, 10*time.Millisecond, "map surface never became ready")

	groupID := fmt.Sprintf("test-maps-%s", uuid.New().String()[:8])
	consumer := events.NewDispatchEventConsumer(brokers, groupID, tripSvc, logger)

	return &tripStack{
		Service:         tripSvc,
		Consumer:        consumer,
		Bridge:          mapBridge,
		Display:         display,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedTripInStatus inserts a trip in the given status for testing.
func seedTripInStatus(t *testing.T, db *gorm.DB, tripID, riderID uuid.UUID, status string) {
	t.Helper()
	now := time.Now().UTC()

	pickup, _ := json.Marshal(map[string]float64{"lat": 24.8138, "lng": 67.0300})
	dropoff, _ := json.Marshal(map[string]float64{"lat": 24.9065, "lng": 67.1608})
	geometry, _ := json.Marshal([]map[string]float64{
		{"lat": 24.8138, "lng": 67.0300},
		{"lat": 24.8500, "lng": 67.0900},
		{"lat": 24.9065, "lng": 67.1608},
	})

	model := repository.TripModel{
		ID:                tripID,
		TripNumber:        fmt.Sprintf("TR-INT%s", uuid.New().String()[:6]),
		RiderID:           riderID,
		Status:            status,
		PickupText:        "Teen Talwar, Clifton",
		DropoffText:       "Jinnah International Airport",
		Pickup:            pickup,
		Dropoff:           dropoff,
		Geometry:          geometry,
		FareEstimatePaisa: 52000,
		Currency:          "PKR",
		Version:           2,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, db.Create(&model).Error, "failed to seed trip")
}

// waitForTripStatus polls the trips table until the status matches.
func waitForTripStatus(t *testing.T, db *gorm.DB, tripID uuid.UUID, expectedStatus string, timeout time.Duration) repository.TripModel {
	t.Helper()
	var result repository.TripModel
	require.Eventually(t, func() bool {
		var model repository.TripModel
		err := db.Where("id = ?", tripID).First(&model).Error
		if err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "trip did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) events.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := events.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType, key string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := events.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := events.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, key, ce)
	require.NoError(t, err, "failed to publish event")
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
