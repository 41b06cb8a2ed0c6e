package kafka

// TopicCommandIntake is the single durable intake topic every command
// type is published to, partitioned by instance_id so commands for one
// instance are processed in publish order within a partition.
const TopicCommandIntake = "ledger.commands.intake"
