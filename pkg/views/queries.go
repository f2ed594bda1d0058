package views

const (
	aggregateLoadQuery = `
SELECT
    timestamp,
    resourcearn,
    avg(num_vcpus) AS num_vcpus,
    sum(value) AS total_db_load,
    greatest(avg(num_vcpus), sum(value)) AS total_compute_power,
    count(DISTINCT "db.user.name") AS distinct_users
FROM {| .MetricsTable |}
WHERE {| .MetricsWindow "timestamp" |}
GROUP BY timestamp, resourcearn
`

	utilizationQuery = `
SELECT
    b.timestamp,
    b.account_id,
    b.resourcearn,
    b.num_vcpus,
    b."db.user.name" AS user_name,
    b.value AS db_load,
    a.total_db_load,
    a.total_compute_power,
    a.distinct_users,
    CASE WHEN a.total_db_load = 0 THEN 0 ELSE b.value / a.total_db_load END AS perc_utilization,
    CASE WHEN a.total_compute_power = 0 THEN 0 ELSE b.value / a.total_compute_power END AS perc_utilization_rebased
FROM {| .Relation "aggregate_load" |} a
JOIN {| .MetricsTable |} b
    ON a.timestamp = b.timestamp
    AND a.resourcearn = b.resourcearn
WHERE {| .MetricsWindow "b.timestamp" |}
`

	costAllocationQuery = `
SELECT
    cur.line_item_usage_start_date AS timestamp,
    u.user_name AS tenant_id,
    cur.line_item_resource_id,
    {| databaseCost "cur" |} AS database_cost,
    u.perc_utilization_rebased * ({| databaseCost "cur" |}) AS tenant_cost,
    u.total_compute_power,
    u.perc_utilization_rebased,
    cur.line_item_usage_type,
    cur.line_item_line_item_type,
    cur.{| .Config.EngineColumn |} AS product_database_engine,
    cur.product_instance_type
FROM {| .BillingTable |} cur
JOIN {| .Relation "utilization" |} u
    ON cur.line_item_resource_id = u.resourcearn
    AND date_trunc('hour', cur.line_item_usage_start_date) = CAST(u.timestamp AS timestamp)
WHERE cur.line_item_product_code = '{| .Config.ProductCode |}'
    AND cur.product_instance_type <> ''
    AND {| .BillingWindow "cur.line_item_usage_start_date" |}
`

	unusedCostQuery = `
SELECT
    date_trunc('hour', timestamp) AS timestamp,
    line_item_resource_id,
    max(database_cost) AS database_cost,
    sum(perc_utilization_rebased) AS database_usage,
    1 - sum(perc_utilization_rebased) AS unused_percentage,
    max(database_cost) - sum(tenant_cost) AS unused_cost,
    sum(perc_utilization_rebased) > 1 + {| epsilon | printf "%g" |} AS overallocated
FROM {| .Relation "cost_allocation" |}
GROUP BY date_trunc('hour', timestamp), line_item_resource_id
`

	reconciliationQuery = `
SELECT
    count(*) AS unmatched_billing
FROM {| .BillingTable |} cur
LEFT JOIN (
    SELECT DISTINCT resourcearn, CAST(timestamp AS timestamp) AS hour
    FROM {| .Relation "utilization" |}
) u
    ON cur.line_item_resource_id = u.resourcearn
    AND date_trunc('hour', cur.line_item_usage_start_date) = u.hour
WHERE cur.line_item_product_code = '{| .Config.ProductCode |}'
    AND cur.product_instance_type <> ''
    AND {| .BillingWindow "cur.line_item_usage_start_date" |}
    AND u.resourcearn IS NULL
`

	overallocatedQuery = `
SELECT
    count(*) AS overallocated_hours
FROM {| .Relation "unused_cost" |}
WHERE overallocated
`

	versionedTablesQuery = `
SELECT
    table_name
FROM {| .InformationSchemaTables |}
WHERE table_schema = '{| .Config.Database |}'
    AND table_type = 'BASE TABLE'
    AND ({| range $i, $name := .PublicRelations |}{| if $i |} OR {| end |}table_name LIKE '{| $name |}\_%' ESCAPE '\'{| end |})
`

	samplesQuery = `
SELECT
    timestamp,
    resourcearn,
    account_id,
    instance_id,
    region,
    metric,
    "db.user.name" AS user_name,
    num_vcpus,
    value
FROM {| .MetricsTable |}
WHERE {| .MetricsWindow "timestamp" |}
`

	lineItemsQuery = `
SELECT
    cur.line_item_usage_start_date,
    cur.line_item_resource_id,
    cur.line_item_line_item_type,
    cur.line_item_product_code,
    cur.line_item_unblended_cost,
    cur.reservation_effective_cost,
    cur.reservation_unused_amortized_upfront_fee_for_billing_period,
    cur.reservation_unused_recurring_fee,
    cur.reservation_reservation_a_r_n,
    cur.line_item_usage_type,
    cur.{| .Config.EngineColumn |} AS product_database_engine,
    cur.product_instance_type
FROM {| .BillingTable |} cur
WHERE cur.line_item_product_code = '{| .Config.ProductCode |}'
    AND {| .BillingWindow "cur.line_item_usage_start_date" |}
`
)
