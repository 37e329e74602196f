package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE tenants (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				slug VARCHAR(63) NOT NULL,
				type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				subscription_plan VARCHAR(50) NOT NULL,
				owner_email VARCHAR(255) NOT NULL,
				owner_name VARCHAR(255) NOT NULL,
				owner_phone VARCHAR(50),
				max_farmers INT NOT NULL DEFAULT 0,
				max_dealers INT NOT NULL DEFAULT 0,
				max_products INT NOT NULL DEFAULT 0,
				max_storage_mb INT NOT NULL DEFAULT 0,
				max_api_calls_per_day INT NOT NULL DEFAULT 0,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_tenants_slug ON tenants(slug);
			CREATE INDEX idx_tenants_status ON tenants(status);
			CREATE INDEX idx_tenants_created_at ON tenants(created_at);

			CREATE TABLE tenant_relationships (
				id UUID PRIMARY KEY,
				identity_id VARCHAR(255) NOT NULL,
				tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
				role VARCHAR(50) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_tenant_relationships_pair ON tenant_relationships(identity_id, tenant_id);
			CREATE INDEX idx_tenant_relationships_tenant ON tenant_relationships(tenant_id);
		`,
		2: `
			CREATE TABLE step_templates (
				id UUID PRIMARY KEY,
				version INT NOT NULL DEFAULT 1,
				step_number INT NOT NULL,
				step_name VARCHAR(255) NOT NULL,
				estimated_time VARCHAR(50),
				is_required BOOLEAN NOT NULL DEFAULT TRUE,
				help_text TEXT,
				default_data JSONB,
				validation_schema JSONB,
				subscription_plans JSONB,
				tenant_types JSONB,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_step_templates_active ON step_templates(is_active);

			CREATE TABLE onboarding_workflows (
				id UUID PRIMARY KEY,
				tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
				current_step INT NOT NULL DEFAULT 1,
				total_steps INT NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				metadata JSONB
			);

			-- One open onboarding run per tenant. Turns the create/create
			-- race into a unique violation the orchestrator can catch.
			CREATE UNIQUE INDEX idx_onboarding_workflows_active_tenant
				ON onboarding_workflows(tenant_id) WHERE status <> 'completed';
			CREATE INDEX idx_onboarding_workflows_status ON onboarding_workflows(status);
			CREATE INDEX idx_onboarding_workflows_started_at ON onboarding_workflows(started_at);

			CREATE TABLE onboarding_steps (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES onboarding_workflows(id) ON DELETE CASCADE,
				step_number INT NOT NULL,
				step_name VARCHAR(255) NOT NULL,
				step_status VARCHAR(50) NOT NULL,
				step_data JSONB,
				validation_errors JSONB,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_onboarding_steps_number ON onboarding_steps(workflow_id, step_number);
		`,
	}
}
