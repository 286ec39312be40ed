package database

// Ledger statements. Balance changes are single conditional statements so
// concurrent requests cannot overdraw a plan.
const (
	planColumns = `user_id, plan, points_left, start_date, is_anonymous, created_at, updated_at`

	SelectPlan = `
		SELECT ` + planColumns + `
		FROM user_plans
		WHERE user_id = $1
	`

	// InsertPlan leaves an existing row untouched and returns it.
	InsertPlan = `
		INSERT INTO user_plans (user_id, plan, points_left, start_date, is_anonymous)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET user_id = user_plans.user_id
		RETURNING ` + planColumns

	ResetPlan = `
		UPDATE user_plans
		SET plan = $2, points_left = $3, start_date = $4, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + planColumns

	DeductPoints = `
		UPDATE user_plans
		SET points_left = points_left - $2, updated_at = NOW()
		WHERE user_id = $1 AND points_left >= $2
		RETURNING points_left
	`

	AddPoints = `
		UPDATE user_plans
		SET points_left = points_left + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING points_left
	`

	SelectPoints = `SELECT points_left FROM user_plans WHERE user_id = $1`

	SelectDevice = `
		SELECT device_id, has_used_free_credits, COALESCE(user_id, ''), created_at
		FROM device_credits
		WHERE device_id = $1
	`

	// MarkDeviceUsed keeps the first claimant and never clears the flag.
	MarkDeviceUsed = `
		INSERT INTO device_credits (device_id, has_used_free_credits, user_id)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (device_id) DO UPDATE
		SET has_used_free_credits = TRUE,
		    user_id = COALESCE(device_credits.user_id, EXCLUDED.user_id)
	`

	InsertTransaction = `
		INSERT INTO transactions (id, user_id, plan, points, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (reference) DO NOTHING
	`

	UpsertPaidPlan = `
		INSERT INTO user_plans (user_id, plan, points_left, start_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET plan = EXCLUDED.plan,
		    points_left = EXCLUDED.points_left,
		    start_date = EXCLUDED.start_date,
		    updated_at = NOW()
		RETURNING ` + planColumns

	InsertGeneration = `
		INSERT INTO generations (id, user_id, task_id, kind, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	SelectGenerations = `
		SELECT id, user_id, task_id, kind, output, created_at
		FROM generations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	LockPlan = `SELECT user_id FROM user_plans WHERE user_id = $1 FOR UPDATE`

	MovePlan = `
		UPDATE user_plans
		SET user_id = $2, is_anonymous = FALSE, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + planColumns

	MoveGenerations = `UPDATE generations SET user_id = $2 WHERE user_id = $1`

	MoveDevices = `UPDATE device_credits SET user_id = $2 WHERE user_id = $1`
)
