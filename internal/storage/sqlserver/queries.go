package sqlserver

// Raw statements for everything gorm cannot express: schema bootstrap,
// system-versioning toggles and history-table reads.
const (
	createSchemaQuery = `
		IF NOT EXISTS (SELECT * FROM sys.schemas WHERE name = 'thoth')
		BEGIN
			EXEC('CREATE SCHEMA [thoth] AUTHORIZATION [dbo]')
		END`

	createTableQuery = `
		IF NOT EXISTS (SELECT * FROM sys.objects
			WHERE object_id = OBJECT_ID(N'[thoth].[FeatureManager]') AND type in (N'U'))
		BEGIN
			CREATE TABLE [thoth].[FeatureManager] (
				Name VARCHAR(255) NOT NULL PRIMARY KEY,
				Kind TINYINT NOT NULL,
				SubKind TINYINT NULL,
				Enabled BIT NOT NULL,
				Value VARCHAR(100) NULL,
				Description VARCHAR(512) NULL,
				Extras VARCHAR(512) NULL,
				CreatedAt DATETIME2 NOT NULL,
				UpdatedAt DATETIME2 NULL,
				DeletedAt DATETIME2 NULL,
				PeriodStart DATETIME2 GENERATED ALWAYS AS ROW START NOT NULL,
				PeriodEnd DATETIME2 GENERATED ALWAYS AS ROW END NOT NULL,
				PERIOD FOR SYSTEM_TIME (PeriodStart, PeriodEnd)
			)
			WITH (SYSTEM_VERSIONING = ON (HISTORY_TABLE = [thoth].[FeatureManagerHistory]))
		END`

	historiesForNameQuery = `
		SELECT Name, Kind, SubKind, Enabled, Value, Description, Extras,
			CreatedAt, UpdatedAt, DeletedAt, PeriodStart, PeriodEnd
		FROM [thoth].[FeatureManagerHistory]
		WHERE Name = ?
		ORDER BY PeriodEnd DESC`

	allHistoriesQuery = `
		SELECT Name, Kind, SubKind, Enabled, Value, Description, Extras,
			CreatedAt, UpdatedAt, DeletedAt, PeriodStart, PeriodEnd
		FROM [thoth].[FeatureManagerHistory]
		ORDER BY Name ASC, PeriodEnd DESC`

	latestDeletedQuery = `
		SELECT h.Name, h.Kind, h.SubKind, h.Enabled, h.Value, h.Description, h.Extras,
			h.CreatedAt, h.UpdatedAt, h.DeletedAt
		FROM [thoth].[FeatureManagerHistory] h
		WHERE h.DeletedAt IS NOT NULL
			AND h.PeriodEnd = (
				SELECT MAX(h2.PeriodEnd) FROM [thoth].[FeatureManagerHistory] h2
				WHERE h2.Name = h.Name)
			AND NOT EXISTS (
				SELECT 1 FROM [thoth].[FeatureManager] c WHERE c.Name = h.Name)
		ORDER BY h.DeletedAt DESC`

	deleteCurrentQuery = `DELETE FROM [thoth].[FeatureManager] WHERE Name = ?`

	setVersioningOffQuery = `ALTER TABLE [thoth].[FeatureManager] SET (SYSTEM_VERSIONING = OFF)`

	setVersioningOnQuery = `
		ALTER TABLE [thoth].[FeatureManager]
		SET (SYSTEM_VERSIONING = ON (HISTORY_TABLE = [thoth].[FeatureManagerHistory]))`

	patchClosedHistoryQuery = `
		UPDATE [thoth].[FeatureManagerHistory]
		SET DeletedAt = ?, Extras = ?
		WHERE Name = ?
			AND PeriodEnd = (
				SELECT MAX(PeriodEnd) FROM [thoth].[FeatureManagerHistory]
				WHERE Name = ?)`

	restoreCurrentQuery = `
		INSERT INTO [thoth].[FeatureManager]
			(Name, Kind, SubKind, Enabled, Value, Description, Extras, CreatedAt, UpdatedAt, DeletedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`
)
