// Package engine wires all Cortexx subsystems together and provides the
// primary application-level API for registering, admitting, and enqueuing
// tenant-scoped work.
//
// # Building an Engine
//
//	core, err := cortexx.New(
//	    cortexx.WithStore(pgStore),
//	    cortexx.WithConcurrency(20),
//	    cortexx.WithWebhookSecret(secret),
//	)
//
//	eng, err := engine.Build(core,
//	    engine.WithQueueConfig(queue.Config{
//	        Name:        "campaigns",
//	        Concurrency: 5,
//	        Retry:       queue.RetryPolicy{MaxAttempts: 4, BackoffBase: time.Second},
//	    }),
//	    engine.WithCache(cache.NewRedis(redisClient)),
//	)
//
// # Registering Work
//
//	engine.Register(eng, &job.Definition[SendMessageInput]{
//	    Name:    "send-message",
//	    Handler: sendMessage,
//	})
//
// # Enqueuing Jobs
//
// Enqueue runs the full admission pipeline: queue validation, payload
// limit, the tenant's token-bucket rate limit, and quota reservation. The
// tenant comes from the context scope set by the API layer:
//
//	ctx = scope.Restore(ctx, tenantID)
//	j, err := engine.Enqueue(ctx, eng, "send-message", input,
//	    job.WithQueue("campaigns"),
//	)
//
// # Webhook Ingestion
//
// The webhook receiver hands raw processor deliveries to the engine;
// verification, dedup, state transition, and cache invalidation all
// happen behind Ingest:
//
//	ev, err := eng.Ingest(ctx, body, r.Header.Get("Processor-Signature"))
package engine
