package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE pages (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				access_token TEXT NOT NULL DEFAULT '',
				ai_enabled BOOLEAN NOT NULL DEFAULT false,
				default_ai_config_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE ai_configs (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				model VARCHAR(255) NOT NULL,
				system_prompt TEXT NOT NULL DEFAULT '',
				temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
				max_tokens INTEGER NOT NULL DEFAULT 0,
				max_history_messages INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			-- Drafts keep the whole editable graph in one document.
			CREATE TABLE scenarios (
				id VARCHAR(255) PRIMARY KEY,
				page_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'inactive')),
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_scenarios_page_id ON scenarios(page_id) WHERE deleted_at IS NULL;

			CREATE TABLE scenario_versions (
				scenario_id VARCHAR(255) NOT NULL REFERENCES scenarios(id),
				version INTEGER NOT NULL,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				snapshot JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (scenario_id, version)
			);

			CREATE TABLE customers (
				id VARCHAR(255) PRIMARY KEY,
				page_id VARCHAR(255) NOT NULL,
				external_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				tags JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (page_id, external_id)
			);

			CREATE TABLE conversations (
				id VARCHAR(255) PRIMARY KEY,
				page_id VARCHAR(255) NOT NULL,
				psid VARCHAR(255) NOT NULL,
				customer_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'pending', 'closed')),
				last_message TEXT NOT NULL DEFAULT '',
				last_updated TIMESTAMP WITH TIME ZONE NOT NULL,
				flow_state JSONB,
				context JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (page_id, psid)
			);

			CREATE INDEX idx_conversations_waiting ON conversations((flow_state->>'awaiting_input_for'));

			CREATE TABLE messages (
				id VARCHAR(255) PRIMARY KEY,
				conversation_id VARCHAR(255) NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				direction VARCHAR(10) NOT NULL CHECK (direction IN ('in', 'out')),
				sender_type VARCHAR(50) NOT NULL,
				text TEXT NOT NULL DEFAULT '',
				attachments JSONB,
				processed_by VARCHAR(50) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				mid VARCHAR(255) NOT NULL DEFAULT '',
				reply_to_id VARCHAR(255) NOT NULL DEFAULT '',
				provider_message_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_messages_conversation ON messages(conversation_id, created_at);
			CREATE INDEX idx_messages_reply_to ON messages(reply_to_id) WHERE reply_to_id <> '';
			CREATE UNIQUE INDEX idx_messages_inbound_mid ON messages(conversation_id, mid)
				WHERE direction = 'in' AND mid <> '';
		`,
	}
}
